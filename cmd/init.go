package cmd

import (
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/encodeous/bgpsim/state"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// sampleConfig is a ring of routers, each originating one /24, with a link failure halfway through
func sampleConfig(routers int) *state.SimulationCfg {
	cfg := &state.SimulationCfg{
		Session: state.SessionCfg{
			HoldDown:          9 * time.Second,
			KeepaliveFraction: state.DefaultKeepaliveFraction,
			ConnectRetry:      5 * time.Second,
			OpenPolicy:        state.OpenIgnore,
			Resync:            true,
		},
		LinkDefault: state.LinkCfg{Latency: state.DefaultLinkLatency},
		Duration:    time.Minute,
	}
	for i := range routers {
		cfg.Routers = append(cfg.Routers, state.RouterCfg{
			Name:     fmt.Sprintf("r%d", i),
			AS:       65000 + uint32(i),
			Prefixes: []netip.Prefix{netip.PrefixFrom(netip.AddrFrom4([4]byte{10, 0, byte(i), 0}), 24)},
		})
	}
	for i := range routers {
		cfg.Graph = append(cfg.Graph, fmt.Sprintf("r%d, r%d", i, (i+1)%routers))
	}
	if routers > 2 {
		cfg.Events = []state.EventCfg{
			{At: 20 * time.Second, Action: state.ActionLinkDown, Router: "r0", Peer: "r1"},
			{At: 40 * time.Second, Action: state.ActionLinkUp, Router: "r0", Peer: "r1"},
		}
	}
	return cfg
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample simulation config",
	RunE: func(cmd *cobra.Command, args []string) error {
		routers, _ := cmd.Flags().GetInt("routers")
		if routers < 2 {
			return fmt.Errorf("need at least 2 routers, got %d", routers)
		}
		cfg := sampleConfig(routers)
		state.ExpandSimulationConfig(cfg)
		if err := state.SimulationConfigValidator(cfg); err != nil {
			return err
		}

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		path := cmd.Flag("config").Value.String()
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists, pass --force to overwrite it", path)
		}
		if err = os.WriteFile(path, out, 0600); err != nil {
			return err
		}
		fmt.Printf("Wrote a %d router ring to %s\n", routers, path)
		return nil
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().IntP("routers", "n", 3, "number of routers in the ring")
	initCmd.Flags().BoolP("force", "f", false, "overwrite an existing config")
}
