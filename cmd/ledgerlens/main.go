package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dwsmith1983/ledgerlens/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "ledgerlens",
		Short: "Derived e-commerce metrics over a transactional ledger",
		Long: `ledgerlens recomputes analytical tables from raw orders, customers, items,
products, payments and sellers: cleaned staging tables, order facts, customer
lifetime value and RFM segments, product/seller/state/delivery rollups,
monthly trends, cohorts, retention and product affinity.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String(commands.DirFlag, ".", "Project directory containing ledgerlens.yaml")

	root.AddCommand(
		commands.NewInitCmd(),
		commands.NewGraphCmd(),
		commands.NewRunCmd(),
		commands.NewStatusCmd(),
		commands.NewExportCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
