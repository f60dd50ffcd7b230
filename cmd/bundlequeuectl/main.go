// Command bundlequeuectl is the bundlequeued operator CLI, grounded in the
// pack's spf13/cobra usage (SPEC_FULL.md §4.9).
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var daemonAddr string

func main() {
	root := &cobra.Command{
		Use:   "bundlequeuectl",
		Short: "Control the bundlequeued daemon",
	}
	root.PersistentFlags().StringVar(&daemonAddr, "daemon", "http://127.0.0.1:8080", "bundlequeued base URL")

	bundlesCmd := &cobra.Command{Use: "bundles", Short: "Manage bundles"}
	bundlesCmd.AddCommand(bundlesListCmd(), bundlesAddCmd(), bundlesRmCmd())

	queueCmd := &cobra.Command{Use: "queue", Short: "Inspect the search scheduler"}
	queueCmd.AddCommand(queuePeekCmd())

	root.AddCommand(bundlesCmd, queueCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func httpJSON(method, path string, body any) (map[string]any, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, daemonAddr+path, reader)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, string(data))
	}
	var out map[string]any
	if resp.ContentLength != 0 {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return out, nil
}

func bundlesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered bundles",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := httpJSON(http.MethodGet, "/api/v1/bundles", nil)
			if err != nil {
				return err
			}
			bundles, _ := out["bundles"].([]any)
			for _, raw := range bundles {
				b, _ := raw.(map[string]any)
				fmt.Printf("%s\t%s\t%s\n", b["token"], b["priority"], b["target"])
			}
			return nil
		},
	}
}

func bundlesAddCmd() *cobra.Command {
	var priority string
	var isFile bool
	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Add a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := httpJSON(http.MethodPost, "/api/v1/bundles", map[string]any{
				"target":         args[0],
				"is_file_bundle": isFile,
				"priority":       priority,
			})
			if err != nil {
				return err
			}
			fmt.Println(out["token"])
			return nil
		},
	}
	cmd.Flags().StringVar(&priority, "priority", "NORMAL", "bundle priority (PAUSED|LOWEST|LOW|NORMAL|HIGH|HIGHEST)")
	cmd.Flags().BoolVar(&isFile, "file", false, "add as a single-file bundle")
	return cmd
}

func bundlesRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <token>",
		Short: "Remove a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := httpJSON(http.MethodDelete, "/api/v1/bundles/"+args[0], nil)
			return err
		},
	}
}

func queuePeekCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "peek",
		Short: "Force a scheduler pick and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := httpJSON(http.MethodPost, "/api/v1/queue/peek", nil)
			if err != nil {
				return err
			}
			if picked, _ := out["picked"].(bool); !picked {
				fmt.Println("no bundle picked")
				return nil
			}
			fmt.Printf("%s\t%s\n", out["token"], out["target"])
			return nil
		},
	}
}
