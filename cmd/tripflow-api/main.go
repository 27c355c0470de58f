// README: Entry point; cobra root for the tripflow server and its one-shot commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "tripflow-api",
	Short: "Typed prompt flows for trip planning",
	Long: `tripflow serves travel planning flows (itineraries, adjustments,
recommendations, activities and chat) over HTTP and MCP, backed by Gemini or OpenAI.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(serveCmd, flowsCmd, invokeCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading configuration (default .env if present)")
}
