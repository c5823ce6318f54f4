package cmd

import (
	"fmt"

	"github.com/edoardooldani/honeysensor/pkg/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print honeysensor's version and exit",
		Run: func(*cobra.Command, []string) {
			fmt.Printf("%s\n", version.Version())
		},
	}
}
