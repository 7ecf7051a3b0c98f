// Command cli is the engagement-agent operator tool: a thin HTTP client
// wrapping the same REST surface (internal/api) that cmd/agent exposes, so
// an operator can trigger crawls, inspect queue depth, and pause/resume the
// scheduler without a direct database or Redis connection.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	apiBaseURL   string
	serviceToken string
)

var rootCmd = &cobra.Command{
	Use:   "agentctl",
	Short: "Operator CLI for the engagement-agent service.",
	Long: `agentctl is a command-line client for an already-running
engagement-agent process. It talks to the process's REST surface
(internal/api) over HTTP rather than opening its own database or Redis
connection, so it always reflects the live state of the running agent.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api-base-url", "http://localhost:8080", "base URL of a running engagement-agent instance")
	rootCmd.PersistentFlags().StringVar(&serviceToken, "token", "", "bearer service token for privileged commands (pause/resume)")

	rootCmd.AddCommand(triggerCrawlCmd)
	rootCmd.AddCommand(listConfigsCmd)
	rootCmd.AddCommand(queueStatsCmd)
	rootCmd.AddCommand(pauseSchedulerCmd)
	rootCmd.AddCommand(resumeSchedulerCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
