package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the tool schemas exported to the reasoning provider",
	Long: `Print the capability schemas the agent loop would export, including the
tools of every configured remote server that can be reached.`,
	Args: cobra.NoArgs,
	RunE: runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	d, cleanup, err := buildDaemon(nil)
	if err != nil {
		return err
	}
	defer cleanup()
	defer d.Close()

	schemas, err := d.ToolSchemas(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to build tools: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(schemas)
}
