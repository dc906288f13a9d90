package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/devops-sunny/turbofetch"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printResult(cmd.OutOrStdout(), turbofetch.GetVersionInfo(), func(w io.Writer) error {
			_, err := fmt.Fprintln(w, turbofetch.GetVersion())
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
