package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"court-intake-service/internal/models"
)

func newRootCommand() *cobra.Command {
	var server, basePath string
	api := func() *client { return newClient(server, basePath) }

	rootCmd := &cobra.Command{
		Use:           "intakectl",
		Short:         "Inspect and steer the court message intake pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&server, "server", envOr("INTAKE_SERVER", "http://localhost:9191"), "Intake service address")
	rootCmd.PersistentFlags().StringVar(&basePath, "base-path", envOr("API_BASE_PATH", "/api/v0"), "API base path")

	rootCmd.AddCommand(newSubmitCommand(api))
	rootCmd.AddCommand(newStatusCommand(api))
	rootCmd.AddCommand(newListCommand(api))
	rootCmd.AddCommand(newAssignCommand(api))
	rootCmd.AddCommand(newRetryCommand(api))
	rootCmd.AddCommand(newWatchCommand(api))
	return rootCmd
}

func newSubmitCommand(api func() *client) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "submit [text]",
		Short: "Submit a court message (from an argument, --file, or stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var content string
			switch {
			case len(args) == 1:
				content = args[0]
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				content = string(data)
			default:
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				content = string(data)
			}
			id, err := api().submit(cmd.Context(), content)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the message from a file")
	return cmd
}

func newStatusCommand(api func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show one record in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := api().get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, detailRows(rec)))
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}

func newListCommand(api func() *client) *cobra.Command {
	var statuses []string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := api().list(cmd.Context(), statuses, limit)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No records")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"ID", "Status", "Case", "Retries", "Received", "Error"}, listRows(list)))
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum records to show")
	return cmd
}

func newAssignCommand(api func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <id> <case-id>",
		Short: "Link a record to a case and resume the pipeline",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			caseID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid case id %q", args[1])
			}
			rec, err := api().assign(cmd.Context(), args[0], caseID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", rec.ID, rec.Status)
			return nil
		},
	}
}

func newRetryCommand(api func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Restart a failed record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := api().retry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (retry %d)\n", rec.ID, rec.Status, rec.RetryCount)
			return nil
		},
	}
}

func newWatchCommand(api func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [id]",
		Short: "Stream status changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			return api().watch(cmd.Context(), id, func(ev map[string]any) {
				line := fmt.Sprintf("%v  %v", ev["id"], ev["status"])
				if msg, ok := ev["error_message"]; ok {
					line += fmt.Sprintf("  (%v)", msg)
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			})
		},
	}
}

func detailRows(rec models.Record) [][]string {
	rows := [][]string{
		{"ID", rec.ID},
		{"Status", string(rec.Status)},
		{"Received", rec.ReceivedAt.Format("2006-01-02 15:04:05")},
		{"Retries", strconv.Itoa(rec.RetryCount)},
	}
	if rec.Kind != nil {
		rows = append(rows, []string{"Kind", string(*rec.Kind)})
	}
	add := func(label string, values []string) {
		if len(values) > 0 {
			rows = append(rows, []string{label, strings.Join(values, "\n")})
		}
	}
	add("Links", rec.DownloadLinks)
	add("Case numbers", rec.CaseNumbers)
	add("Parties", rec.PartyNames)
	add("Files", rec.Files)
	add("Renamed", rec.RenamedFiles)
	if rec.CaseID != nil {
		rows = append(rows, []string{"Case", strconv.FormatInt(*rec.CaseID, 10)})
	}
	if rec.SentAt != nil {
		rows = append(rows, []string{"Sent", rec.SentAt.Format("2006-01-02 15:04:05")})
	}
	if rec.ErrorMessage != nil {
		rows = append(rows, []string{"Error", *rec.ErrorMessage})
	}
	if rec.NotifyError != nil {
		rows = append(rows, []string{"Notify error", *rec.NotifyError})
	}
	return rows
}

func listRows(list []models.Record) [][]string {
	rows := make([][]string, 0, len(list))
	for _, rec := range list {
		caseID := "-"
		if rec.CaseID != nil {
			caseID = strconv.FormatInt(*rec.CaseID, 10)
		}
		errMsg := ""
		if rec.ErrorMessage != nil {
			errMsg = shorten(*rec.ErrorMessage, 60)
		}
		rows = append(rows, []string{
			rec.ID,
			string(rec.Status),
			caseID,
			strconv.Itoa(rec.RetryCount),
			rec.ReceivedAt.Format("01-02 15:04"),
			errMsg,
		})
	}
	return rows
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
