// ABOUTME: version subcommand
// ABOUTME: Prints the product name and release version
package cli

import (
	"fmt"

	"github.com/Resonate-Protocol/audiosock/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
