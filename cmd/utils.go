package cmd

import (
	"github.com/encodeous/bgpsim/state"
	"github.com/spf13/cobra"
)

func loadConfig(cmd *cobra.Command) (*state.SimulationCfg, error) {
	cfg, err := state.ReadSimulationConfig(cmd.Flag("config").Value.String())
	if err != nil {
		return nil, err
	}
	state.ExpandSimulationConfig(cfg)
	return cfg, state.SimulationConfigValidator(cfg)
}
