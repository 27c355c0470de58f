// README: flows command; prints the flow catalogue with each field's type and constraints.
package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"tripflow/internal/flow"
	"tripflow/internal/travel"
)

var flowsCmd = &cobra.Command{
	Use:   "flows",
	Short: "List registered flows and their fields",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := travel.NewRegistry()
		if err != nil {
			return err
		}
		printCatalogue(cmd.OutOrStdout(), registry)
		return nil
	},
}

func printCatalogue(w io.Writer, registry *flow.Registry) {
	for i, spec := range registry.Specs() {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s\n  %s\n", spec.Name, spec.Description)
		fmt.Fprintln(w, "  input:")
		for _, f := range spec.Input {
			fmt.Fprintf(w, "    %s\n", describeField(f))
		}
		fmt.Fprintln(w, "  output:")
		for _, f := range spec.Output {
			fmt.Fprintf(w, "    %s\n", describeField(f))
		}
	}
}

func describeField(f flow.Field) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-28s %s", f.Name, f.Type)
	if f.Type == flow.TypeEnum {
		fmt.Fprintf(&b, "[%s]", strings.Join(f.Values, "|"))
	}
	if f.Required {
		b.WriteString(" required")
	}
	if f.Default != "" {
		fmt.Fprintf(&b, " default=%s", f.Default)
	}
	if f.Min != nil {
		fmt.Fprintf(&b, " min=%g", *f.Min)
	}
	if f.Max != nil {
		fmt.Fprintf(&b, " max=%g", *f.Max)
	}
	if f.MaxLength > 0 {
		fmt.Fprintf(&b, " max_length=%d", f.MaxLength)
	}
	return b.String()
}
