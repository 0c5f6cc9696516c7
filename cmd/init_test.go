package cmd

import (
	"testing"

	"github.com/encodeous/bgpsim/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSampleConfigRoundTrips(t *testing.T) {
	cfg := sampleConfig(4)
	state.ExpandSimulationConfig(cfg)
	require.NoError(t, state.SimulationConfigValidator(cfg))

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	parsed, err := state.ParseSimulationConfig(out)
	require.NoError(t, err)
	state.ExpandSimulationConfig(parsed)
	require.NoError(t, state.SimulationConfigValidator(parsed))

	assert.Equal(t, cfg.RouterNames(), parsed.RouterNames())
	assert.Equal(t, cfg.Session, parsed.Session)
	peerings, err := parsed.Peerings()
	require.NoError(t, err)
	assert.Len(t, peerings, 4)
	require.Len(t, parsed.Events, 2)
	assert.Equal(t, state.ActionLinkDown, parsed.Events[0].Action)
}
