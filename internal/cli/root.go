package cli

import "github.com/spf13/cobra"

// Execute runs the root command with os.Args.
func Execute() error {
	return NewRoot().Execute()
}

// NewRoot builds the command tree.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "tidewatch",
		Short:         "Vessel data core: values, metadata, zones and units",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		ServeCmd(),
		UnitsCmd(),
	)
	return root
}
