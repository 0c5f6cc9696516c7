package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Checks a simulation config without running it",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		peerings, _ := cfg.Peerings()
		fmt.Printf("Config is valid: %d routers, %d peerings, %d events\n", len(cfg.Routers), len(peerings), len(cfg.Events))
		return nil
	},
	GroupID: "init",
}

var graphCmd = &cobra.Command{
	Use:     "graph",
	Aliases: []string{"g"},
	Short:   "Prints the interface wiring the graph expands to",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		wiring, err := cfg.Wiring()
		if err != nil {
			return err
		}
		for _, name := range cfg.RouterNames() {
			rt, _ := cfg.GetRouter(name)
			fmt.Printf("%s (AS %d)\n", name, rt.AS)
			for iface, ic := range wiring[name] {
				link := cfg.LinkBetween(name, ic.Neighbor)
				fmt.Printf("  if %d -> %s if %d  latency %s jitter %s loss %.2f\n",
					iface, ic.Neighbor, ic.NeighborInterface, link.Latency, link.Jitter, link.Loss)
			}
		}
		return nil
	},
	GroupID: "sim",
}

func init() {
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(graphCmd)
}
