package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

const DefaultConfigPath = "sim.yaml"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bgpsim",
	Short: "BGP control plane simulator",
	Long: `bgpsim runs a set of BGP-style routers over simulated links.
Routers exchange OPEN, KEEPALIVE, UPDATE and WITHDRAW messages, select best paths, and react to scripted link failures.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "init",
		Title: "Configure a Simulation",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "sim",
		Title: "Simulation Commands",
	})
	rootCmd.PersistentFlags().StringP("config", "c", DefaultConfigPath, "simulation config")
}
