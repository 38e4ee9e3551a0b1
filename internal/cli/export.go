package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// NewExportCmd writes a question's submitted responses to a CSV or XLSX file.
func NewExportCmd(configPath *string) *cobra.Command {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export <question-id>",
		Short: "Export submitted responses of a question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			file, err := rt.service.ExportResponses(cmd.Context(), args[0], format, rt.cfg.Location())
			if err != nil {
				return err
			}
			if out == "" {
				out = file.Name
			}
			if err := os.WriteFile(out, file.Data, 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			rt.logger.Info("responses exported", "question_id", args[0], "file", out, "size", humanize.Bytes(uint64(len(file.Data))))
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "csv", "csv or xlsx")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (defaults to the generated name)")
	return cmd
}

// NewWordCloudCmd prints the word cloud of a text question as JSON.
func NewWordCloudCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "wordcloud <question-id>",
		Short: "Print the word cloud of a text question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			cloud, err := rt.service.WordCloud(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cloud)
		},
	}
}
