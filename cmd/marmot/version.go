package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmotpm/marmot/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Prints the marmot version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(version.String())
		},
	}
}
