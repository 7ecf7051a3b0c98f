package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// doRequest issues method against path on the configured API base URL,
// attaching the service token (when set) for privileged routes, and prints
// the response body: a JSON object body is re-indented for reading, any
// other body is printed unchanged.
func doRequest(method, path string) error {
	req, err := http.NewRequest(method, apiBaseURL+path, nil)
	if err != nil {
		return err
	}
	if serviceToken != "" {
		req.Header.Set("Authorization", "Bearer "+serviceToken)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", apiBaseURL+path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty map[string]any
	if json.Unmarshal(body, &pretty) == nil {
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(out))
	} else {
		fmt.Println(string(body))
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s returned %s", method, path, resp.Status)
	}
	return nil
}

var triggerCrawlCmd = &cobra.Command{
	Use:   "trigger-crawl [config-name]",
	Short: "Run a registered crawl config immediately, bypassing its schedule.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return doRequest(http.MethodPost, "/crawlers/run/"+args[0])
	},
}

var listConfigsCmd = &cobra.Command{
	Use:   "list-configs",
	Short: "List every registered crawl config and its run bookkeeping.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return doRequest(http.MethodGet, "/crawlers/status")
	},
}

var queueStatsCmd = &cobra.Command{
	Use:   "queue-stats",
	Short: "Show the posting queue's current depth.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return doRequest(http.MethodGet, "/posting/queue/stats")
	},
}

var pauseSchedulerCmd = &cobra.Command{
	Use:   "pause-scheduler",
	Short: "Pause the crawl scheduler without tearing down its tick loop (requires --token).",
	RunE: func(cmd *cobra.Command, args []string) error {
		return doRequest(http.MethodPost, "/crawlers/scheduler/pause")
	},
}

var resumeSchedulerCmd = &cobra.Command{
	Use:   "resume-scheduler",
	Short: "Resume a paused crawl scheduler (requires --token).",
	RunE: func(cmd *cobra.Command, args []string) error {
		return doRequest(http.MethodPost, "/crawlers/scheduler/resume")
	},
}
