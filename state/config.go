package state

import (
	"fmt"
	"net/netip"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

type OpenPolicy string

const (
	// OpenIgnore keeps the session as-is when an OPEN arrives on an established session
	OpenIgnore OpenPolicy = "ignore"
	// OpenReset restarts the session, purging the routes learned on it
	OpenReset OpenPolicy = "reset"
)

type SessionCfg struct {
	HoldDown          time.Duration `yaml:"hold_down"`
	KeepaliveFraction int           `yaml:"keepalive_fraction"`
	ConnectRetry      time.Duration `yaml:"connect_retry,omitempty"` // OPEN is re-sent at this interval while a session is down, negative disables
	OpenPolicy        OpenPolicy    `yaml:"open_policy,omitempty"`
	Resync            bool          `yaml:"resync,omitempty"`          // advertise the whole main table to a peer when its session comes up
	MaxRoutes         int           `yaml:"max_routes,omitempty"`      // raw table capacity, 0 is unbounded
	QuietAnomalies    bool          `yaml:"quiet_anomalies,omitempty"` // count protocol anomalies without logging them
}

func (c SessionCfg) Keepalive() time.Duration {
	if c.KeepaliveFraction <= 0 {
		return c.HoldDown
	}
	return c.HoldDown / time.Duration(c.KeepaliveFraction)
}

// RouterCfg is the immutable configuration of a single router
type RouterCfg struct {
	Name               string            `yaml:"name"`
	AS                 uint32            `yaml:"as"`
	Identifier         string            `yaml:"id,omitempty"` // bgp identifier, defaults to the name
	Prefixes           []netip.Prefix    `yaml:",omitempty"`   // originated by this router
	LocalPref          uint32            `yaml:"local_pref,omitempty"`
	MED                uint32            `yaml:"med,omitempty"`
	LocalPrefOverrides map[uint32]uint32 `yaml:"local_pref_overrides,omitempty"` // neighbour AS -> local preference
	StartDelay         time.Duration     `yaml:"start_delay,omitempty"`
	LogPath            string            `yaml:"log_path,omitempty"`
}

// InterfaceCfg wires one local interface to an interface on a neighbouring router
type InterfaceCfg struct {
	Neighbor          string
	NeighborInterface int
}

type LinkCfg struct {
	A       string        `yaml:"a"`
	B       string        `yaml:"b"`
	Latency time.Duration `yaml:"latency,omitempty"`
	Jitter  time.Duration `yaml:"jitter,omitempty"`
	Loss    float64       `yaml:"loss,omitempty"`
}

type EventAction string

const (
	ActionLinkDown  EventAction = "link_down"
	ActionLinkUp    EventAction = "link_up"
	ActionShutdown  EventAction = "shutdown"
	ActionRevive    EventAction = "revive"
	ActionOriginate EventAction = "originate"
	ActionWithdraw  EventAction = "withdraw"
)

// EventCfg is a scripted action applied at a point in simulated time
type EventCfg struct {
	At     time.Duration `yaml:"at"`
	Action EventAction   `yaml:"action"`
	Router string        `yaml:"router"`
	Peer   string        `yaml:"peer,omitempty"`
	Prefix netip.Prefix  `yaml:"prefix,omitempty"`
}

type SimulationCfg struct {
	Session     SessionCfg    `yaml:"session"`
	Routers     []RouterCfg   `yaml:"routers"`
	Graph       []string      `yaml:"graph"`
	LinkDefault LinkCfg       `yaml:"link_default,omitempty"`
	Links       []LinkCfg     `yaml:"links,omitempty"`
	Events      []EventCfg    `yaml:"events,omitempty"`
	Duration    time.Duration `yaml:"duration,omitempty"`
	Seed        uint64        `yaml:"seed,omitempty"`
}

func ReadSimulationConfig(path string) (*SimulationCfg, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSimulationConfig(file)
}

func ParseSimulationConfig(data []byte) (*SimulationCfg, error) {
	var cfg SimulationCfg
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse simulation config: %w", err)
	}
	return &cfg, nil
}

func ExpandSimulationConfig(cfg *SimulationCfg) {
	if cfg.Session.HoldDown == 0 {
		cfg.Session.HoldDown = DefaultHoldDown
	}
	if cfg.Session.KeepaliveFraction == 0 {
		cfg.Session.KeepaliveFraction = DefaultKeepaliveFraction
	}
	if cfg.Session.ConnectRetry == 0 {
		cfg.Session.ConnectRetry = DefaultConnectRetry
	}
	if cfg.Session.OpenPolicy == "" {
		cfg.Session.OpenPolicy = OpenIgnore
	}
	if cfg.LinkDefault.Latency == 0 {
		cfg.LinkDefault.Latency = DefaultLinkLatency
	}
	for idx, rt := range cfg.Routers {
		if rt.Identifier == "" {
			rt.Identifier = rt.Name
		}
		if rt.LocalPref == 0 {
			rt.LocalPref = DefaultLocalPref
		}
		for i, p := range rt.Prefixes {
			rt.Prefixes[i] = p.Masked()
		}
		cfg.Routers[idx] = rt
	}
}

func (c *SimulationCfg) RouterNames() []string {
	names := make([]string, 0, len(c.Routers))
	for _, rt := range c.Routers {
		names = append(names, rt.Name)
	}
	return names
}

func (c *SimulationCfg) IndexOf(name string) int {
	return slices.IndexFunc(c.Routers, func(cfg RouterCfg) bool {
		return cfg.Name == name
	})
}

func (c *SimulationCfg) GetRouter(name string) (RouterCfg, bool) {
	idx := c.IndexOf(name)
	if idx == -1 {
		return RouterCfg{}, false
	}
	return c.Routers[idx], true
}

// Peerings returns every router pair joined by the graph, sorted
func (c *SimulationCfg) Peerings() ([]Pair[string, string], error) {
	return ParseGraph(c.Graph, c.RouterNames())
}

// Wiring assigns interfaces to every peering. Interfaces are numbered from 0 per router in peering order,
// so the same config always produces the same wiring.
func (c *SimulationCfg) Wiring() (map[string][]InterfaceCfg, error) {
	peerings, err := c.Peerings()
	if err != nil {
		return nil, err
	}
	wiring := make(map[string][]InterfaceCfg)
	for _, name := range c.RouterNames() {
		wiring[name] = make([]InterfaceCfg, 0)
	}
	for _, p := range peerings {
		ia := len(wiring[p.V1])
		ib := len(wiring[p.V2])
		wiring[p.V1] = append(wiring[p.V1], InterfaceCfg{Neighbor: p.V2, NeighborInterface: ib})
		wiring[p.V2] = append(wiring[p.V2], InterfaceCfg{Neighbor: p.V1, NeighborInterface: ia})
	}
	return wiring, nil
}

// LinkBetween returns the link properties between two routers, falling back to the default link
func (c *SimulationCfg) LinkBetween(a, b string) LinkCfg {
	for _, l := range c.Links {
		if (l.A == a && l.B == b) || (l.A == b && l.B == a) {
			return l
		}
	}
	def := c.LinkDefault
	def.A, def.B = a, b
	return def
}

func parseSymbolList(s string, validSymbols []string) ([]string, error) {
	line := make([]string, 0)
	for _, sym := range strings.Split(strings.TrimSpace(s), ",") {
		x := strings.TrimSpace(sym)
		if x == "" {
			continue
		}
		if !slices.Contains(validSymbols, x) {
			return nil, fmt.Errorf(`%s is not a valid router/group`, x)
		}
		line = append(line, x)
	}
	if len(line) == 0 {
		return nil, fmt.Errorf(`router/group list must not be empty`)
	}
	slices.Sort(line)
	return slices.Compact(line), nil
}

/*
ParseGraph reads the peering graph. Each line is either a group definition or a list of routers/groups to interconnect:

	core = r0, r1
	edge = r2, r3
	core, core   // full mesh within core
	core, edge   // every core router peers with every edge router
	r3, r4       // a single peering

routers is the set of terminal names the graph expands to.
*/
func ParseGraph(graph []string, routers []string) ([]Pair[string, string], error) {
	groups := make(map[string][]string)
	symbols := slices.Clone(routers)
	lines := make([]string, 0, len(graph))

	for _, line := range graph {
		line = strings.ToLower(strings.TrimSpace(line))
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if name, _, ok := strings.Cut(line, "="); ok {
			name = strings.TrimSpace(name)
			if slices.Contains(routers, name) {
				return nil, fmt.Errorf("group name must not be a router name: %s", name)
			}
			if _, dup := groups[name]; dup {
				return nil, fmt.Errorf("duplicate group name: %s", name)
			}
			groups[name] = nil
			symbols = append(symbols, name)
		}
	}

	pairings := make([][]string, 0)
	for _, line := range lines {
		name, members, isGroup := strings.Cut(line, "=")
		if isGroup {
			if strings.Contains(members, "=") {
				return nil, fmt.Errorf("invalid graph: %s. group definition must contain one '='", line)
			}
			lst, err := parseSymbolList(members, symbols)
			if err != nil {
				return nil, err
			}
			groups[strings.TrimSpace(name)] = lst
			continue
		}
		lst, err := parseSymbolList(line, symbols)
		if err != nil {
			return nil, err
		}
		if len(lst) < 2 && (len(lst) == 0 || slices.Contains(routers, lst[0])) {
			return nil, fmt.Errorf("invalid pairing, %v", lst)
		}
		pairings = append(pairings, lst)
	}

	// expand groups into routers, rejecting cycles
	expanded := make(map[string][]string)
	var expand func(sym string, visiting []string) ([]string, error)
	expand = func(sym string, visiting []string) ([]string, error) {
		if slices.Contains(routers, sym) {
			return []string{sym}, nil
		}
		if res, ok := expanded[sym]; ok {
			return res, nil
		}
		if slices.Contains(visiting, sym) {
			cycle := append(slices.Clone(visiting), sym)
			slices.Sort(cycle)
			return nil, fmt.Errorf("cycle detected in graph: %v", slices.Compact(cycle))
		}
		res := make([]string, 0)
		for _, member := range groups[sym] {
			sub, err := expand(member, append(visiting, sym))
			if err != nil {
				return nil, err
			}
			res = append(res, sub...)
		}
		slices.Sort(res)
		res = slices.Compact(res)
		expanded[sym] = res
		return res, nil
	}

	out := make([]Pair[string, string], 0)
	for _, line := range pairings {
		// a lone group interconnects with itself
		if len(line) == 1 {
			line = []string{line[0], line[0]}
		}
		for i := range line {
			for j := i + 1; j < len(line); j++ {
				xs, err := expand(line[i], nil)
				if err != nil {
					return nil, err
				}
				ys, err := expand(line[j], nil)
				if err != nil {
					return nil, err
				}
				for _, x := range xs {
					for _, y := range ys {
						if x != y {
							out = append(out, MakeSortedPair(x, y))
						}
					}
				}
			}
		}
	}
	SortPairs(out)
	return slices.Compact(out), nil
}
