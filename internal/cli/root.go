// Package cli implements the pagewatchctl operator command.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the pagewatchctl command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "pagewatchctl",
		Short: "Offline tools for pagewatch event files",
		Long: `pagewatchctl classifies and summarizes recorded browser events without a
running server, prints the accepted event schema, and can query the phishing
analyzer configured for the pagewatch API.

Example:
  pagewatchctl classify session.yaml --output yaml
  pagewatchctl check https://example.com`,
		SilenceUsage: true,
	}

	root.Version = version
	root.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	root.AddCommand(
		newClassifyCmd(),
		newSchemaCmd(),
		newCheckCmd(),
		newVersionCmd(version),
	)
	return root
}

// Execute runs the root command
func Execute(version string) error {
	return NewRootCmd(version).Execute()
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pagewatchctl %s\n", version)
		},
	}
}
