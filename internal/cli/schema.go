package cli

import (
	"github.com/mbd888/pagewatch/internal/events"
	"github.com/spf13/cobra"
)

func newSchemaCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print accepted event types, meta schemas and examples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(output); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), output, events.Describe())
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", formatJSON, "Output format: json or yaml")
	return cmd
}
