package main

import "github.com/spf13/cobra"

var BuildVersion = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "permgate",
		Short:         "permgate console gateway",
		Long:          "Console gateway and configuration tool for role-based route and menu access.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newServeCommand(),
		newInitCommand(),
		newValidateCommand(),
		newConvertCommand(),
		newRoutesCommand(),
		newResolveCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number of permgate",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				cmd.Printf("%s\n", BuildVersion)
			},
		},
	)
	return root
}
