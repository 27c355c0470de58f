// README: invoke command; runs one flow from key=value arguments and prints the output as JSON.
package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var invokeUID string

var invokeCmd = &cobra.Command{
	Use:   "invoke <flow> [key=value...]",
	Short: "Run one flow and print its output",
	Example: `  tripflow-api invoke generateItinerary destination=Jaipur budget="20000 INR" interests=forts duration=3
  tripflow-api invoke chat message="Best time to visit Munnar?" language=ta`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := parseAssignments(args[1:])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.planner.Plan(cmd.Context(), invokeUID, args[0], raw)
		if err != nil {
			return err
		}
		if !res.Succeeded() {
			for _, v := range res.Failure.Violations {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", v.Field, v.Message)
			}
			return fmt.Errorf("%s: %s", res.Failure.Kind, res.Failure.Message)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res.Output)
	},
}

func init() {
	invokeCmd.Flags().StringVar(&invokeUID, "uid", "", "caller id charged against the monthly quota")
}

func parseAssignments(args []string) (map[string]string, error) {
	raw := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		raw[strings.TrimSpace(key)] = value
	}
	return raw, nil
}
