// Command curvectl inspects emission curves and claim fee schedules offline.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	curveFile string
	startUnit uint64
)

var rootCmd = &cobra.Command{
	Use:   "curvectl",
	Short: "Inspect emission curves and claim fees",
	Long: `Evaluates the built-in emission curves (v1, v1-extended, liquidity-mining, v2),
curves from a YAML definition file, and the public and private claim fee schedules.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&curveFile, "curve-file", "", "YAML curve definitions to load besides the presets")
	rootCmd.PersistentFlags().Uint64Var(&startUnit, "start", 0, "start unit the curve or fee schedule is anchored at")

	rootCmd.AddCommand(emittedCmd, tableCmd, feeCmd, listCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
