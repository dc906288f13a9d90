package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/devops-sunny/turbofetch/calllog"
)

var logsPage string

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect and manage the call log",
	Long: `Inspect and manage the call log of the configured backend.

The call log keeps one entry per url and method. Its status, response,
duration and error reflect the most recent call; page and agent keep the
values of the first call.`,
}

var logsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List call log entries",
	Example: `  fetchctl logs list
  fetchctl logs list --page /dashboard -o yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		var entries []*calllog.Entry
		if logsPage != "" {
			entries, err = s.client.CallLogsByPage(cmd.Context(), logsPage)
		} else {
			entries, err = s.client.CallLogs(cmd.Context())
		}
		if err != nil {
			return err
		}
		if entries == nil {
			entries = []*calllog.Entry{}
		}

		return printResult(cmd.OutOrStdout(), entries, func(w io.Writer) error {
			if len(entries) == 0 {
				_, err := fmt.Fprintln(w, "No call log entries")
				return err
			}
			tw := newTable(w)
			fmt.Fprintln(tw, "ID\tMETHOD\tURL\tSTATUS\tDURATION\tPAGE\tLOGGED AT")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%dms\t%s\t%s\n",
					e.ID, e.Method, e.URL, e.Status, e.DurationMs, e.Page, e.Timestamp.Format(time.RFC3339))
			}
			return tw.Flush()
		})
	},
}

var logsCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count the endpoints called from a page",
	Long: `Count the distinct url and method pairs attributed to a page.
Without --page the configured client.page is used.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := s.client.CallCount(cmd.Context(), logsPage)
		if err != nil {
			return err
		}
		page := logsPage
		if page == "" {
			page = s.cfg.Client.Page
		}
		return printResult(cmd.OutOrStdout(), countResult{Page: page, Count: n}, func(w io.Writer) error {
			_, err := fmt.Fprintln(w, n)
			return err
		})
	},
}

var logsWipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Delete every call log entry",
	Long: `Delete the whole call log store. If another handle keeps the store
open the wipe is reported as blocked and exits successfully.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		blocked, err := s.client.ClearCallLogs(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), wipeResult{Blocked: blocked}, func(w io.Writer) error {
			if blocked {
				_, err := fmt.Fprintln(w, "Call log wipe blocked by an open handle")
				return err
			}
			_, err := fmt.Fprintln(w, "Call log wiped")
			return err
		})
	},
}

type countResult struct {
	Page  string `json:"page" yaml:"page"`
	Count int    `json:"count" yaml:"count"`
}

type wipeResult struct {
	Blocked bool `json:"blocked" yaml:"blocked"`
}

func init() {
	logsListCmd.Flags().StringVar(&logsPage, "page", "", "Only entries attributed to this page")
	logsCountCmd.Flags().StringVar(&logsPage, "page", "", "Page to count (default: client.page)")

	logsCmd.AddCommand(logsListCmd, logsCountCmd, logsWipeCmd, logsServeCmd)
	rootCmd.AddCommand(logsCmd)
}
