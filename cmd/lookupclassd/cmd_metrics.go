package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newtron-network/lookupclass/pkg/metrics"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "List the Prometheus metrics the daemon exports",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(metrics.Documentation())
	},
}
