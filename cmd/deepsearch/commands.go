package main

import (
	"fmt"
	"mime"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// --- research ---

var researchCmd = &cobra.Command{
	Use:   "research <query>",
	Short: "Run a deep research query and print the report",
	Long: `Run a deep research query and print the final Markdown report.

The run blocks until the report is ready and saved to history.

Examples:
  deepsearch research "量子计算的发展现状"
  deepsearch research "state of quantum computing" --output report.md`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Researching: %s", args[0])
		resp, err := client.post(cmd.Context(), "/research", map[string]string{"query": args[0]})
		if err != nil {
			return err
		}

		var result struct {
			ReportID int64  `json:"report_id"`
			Report   string `json:"report"`
			Warning  string `json:"warning"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.Warning != "" {
			printWarning("%s", result.Warning)
		}
		if result.ReportID != 0 {
			printSuccess("Report saved to history (id %d)", result.ReportID)
		}

		if output != "" {
			if err := os.WriteFile(output, []byte(result.Report), 0o644); err != nil {
				return fmt.Errorf("writing report: %w", err)
			}
			printSuccess("Wrote %s", output)
			return nil
		}
		fmt.Println(result.Report)
		return nil
	},
}

func init() {
	researchCmd.Flags().String("output", "", "write the report to a file instead of stdout")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse saved research reports",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved reports, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/history")
		if err != nil {
			return err
		}

		var entries []struct {
			ID        int64     `json:"id"`
			Query     string    `json:"query"`
			CreatedAt time.Time `json:"created_at"`
		}
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("no saved reports")
			return nil
		}
		for _, e := range entries {
			id := colorize(colorBold, fmt.Sprintf("%4d", e.ID))
			fmt.Printf("%s  %s  %s\n", id, e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Query)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one saved report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[0])
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/history/%d", id))
		if err != nil {
			return err
		}

		var rec struct {
			Query  string `json:"query"`
			Report string `json:"report"`
		}
		if err := decodeJSON(resp, &rec); err != nil {
			return err
		}

		printStatus("Query", "%s", rec.Query)
		fmt.Println(rec.Report)
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one saved report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[0])
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), fmt.Sprintf("/history/%d", id))
		if err != nil {
			return err
		}

		var result struct {
			Deleted bool `json:"deleted"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if !result.Deleted {
			printWarning("Record %d did not exist", id)
			return nil
		}
		printSuccess("Deleted record %d", id)
		return nil
	},
}

var historyDownloadCmd = &cobra.Command{
	Use:   "download <id>",
	Short: "Download one saved report as Markdown or PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[0])
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/history/%d/download?format=%s", id, format))
		if err != nil {
			return err
		}

		data, err := readBody(resp)
		if err != nil {
			return err
		}

		if output == "" {
			output = suggestedFilename(resp.Header.Get("Content-Disposition"), fmt.Sprintf("report_%d.%s", id, format))
		}
		if err := os.WriteFile(output, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", output, err)
		}
		printSuccess("Wrote %s", output)
		return nil
	},
}

func init() {
	historyDownloadCmd.Flags().String("format", "markdown", "output format: markdown or pdf")
	historyDownloadCmd.Flags().String("output", "", "output file path (default: server-suggested name)")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyDownloadCmd)
}

// --- render ---

var renderCmd = &cobra.Command{
	Use:   "render <file>",
	Short: "Render a Markdown report file to PDF or Markdown",
	Long: `Render a Markdown report file through the server's rendering chain.

Examples:
  deepsearch render report.md --format pdf --output report.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		text, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/render", map[string]string{
			"text":   string(text),
			"format": format,
		})
		if err != nil {
			return err
		}

		data, err := readBody(resp)
		if err != nil {
			return err
		}

		if output == "" {
			output = suggestedFilename(resp.Header.Get("Content-Disposition"), "report."+format)
		}
		if err := os.WriteFile(output, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", output, err)
		}
		printSuccess("Wrote %s", output)
		return nil
	},
}

func init() {
	renderCmd.Flags().String("format", "pdf", "output format: markdown or pdf")
	renderCmd.Flags().String("output", "", "output file path (default: server-suggested name)")
}

// --- keys ---

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage stored API credentials",
}

var keysSetCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Store an API key (deepseek, openai, tavily)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.put(cmd.Context(), "/keys", map[string]string{args[0]: args[1]})
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}

		printSuccess("Stored key %s", args[0])
		return nil
	},
}

func init() {
	keysCmd.AddCommand(keysSetCmd)
}

// suggestedFilename extracts the filename from a Content-Disposition header,
// falling back when the header is absent or malformed.
func suggestedFilename(disposition, fallback string) string {
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil || params["filename"] == "" {
		return fallback
	}
	return params["filename"]
}
