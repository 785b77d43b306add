// Package main はマイグレーションCLIのエントリポイント。
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var (
	apiURL  string
	output  string
	timeout time.Duration
)

// HTTPクライアント
var httpClient *http.Client

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "migratectl",
		Short:        "Schema migration CLI",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if apiURL == "" {
				apiURL = os.Getenv("MIGRATECTL_API_URL")
			}
			httpClient = &http.Client{Timeout: timeout}
		},
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API endpoint URL (or set MIGRATECTL_API_URL)")
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	// サブコマンド登録
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(getCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "migratectl version %s\n", version)
		},
	}
}

type migrationResult struct {
	Version   string  `json:"version"`
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	AppliedAt *string `json:"applied_at"`
}

// fetch はAPIにGETリクエストを送り、200以外はエラーに変換する。
func fetch(path string) ([]byte, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("--api-url is required (or set MIGRATECTL_API_URL)")
	}

	resp, err := httpClient.Get(apiURL + path)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

// listCmd はサーバーからマイグレーション一覧を取得する。
func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List migrations known to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := fetch("/v1/migrations")
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output == "json" {
				fmt.Fprintln(out, string(body))
				return nil
			}

			var result struct {
				Migrations []migrationResult `json:"migrations"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}

			fmt.Fprintf(out, "%-16s %-10s %s\n", "VERSION", "STATUS", "NAME")
			for _, m := range result.Migrations {
				fmt.Fprintf(out, "%-16s %-10s %s\n", m.Version, m.Status, m.Name)
			}
			return nil
		},
	}
}

// getCmd は指定バージョンの状況を取得する。
func getCmd() *cobra.Command {
	var migrationVersion string
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Get a migration by version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if migrationVersion == "" {
				return fmt.Errorf("--version is required")
			}

			body, err := fetch("/v1/migrations/" + url.PathEscape(migrationVersion))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output == "json" {
				fmt.Fprintln(out, string(body))
				return nil
			}

			var m migrationResult
			if err := json.Unmarshal(body, &m); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			appliedAt := "-"
			if m.AppliedAt != nil {
				appliedAt = *m.AppliedAt
			}
			fmt.Fprintf(out, "%s %s %s (applied at: %s)\n", m.Version, m.Name, m.Status, appliedAt)
			return nil
		},
	}
	cmd.Flags().StringVar(&migrationVersion, "version", "", "Migration version (required)")
	cmd.MarkFlagRequired("version")
	return cmd
}

func handleErrorResponse(statusCode int, body []byte) error {
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&errResp); err == nil && errResp.Message != "" {
		return fmt.Errorf("Error: %s", errResp.Message)
	}
	return fmt.Errorf("Error: server returned status %d", statusCode)
}
