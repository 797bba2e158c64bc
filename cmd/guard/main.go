package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "guard",
		Short: "Policy gate for outgoing financial actions",
		Long: "guard sits between trading strategies/operators and the custody backend:\n" +
			"every trade, transfer and vault operation passes guardrails, the composite\n" +
			"risk engine and (optionally) human approval before any money moves.",
	}

	root.AddCommand(newServeCmd(), newHaltCmd(), newResumeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
