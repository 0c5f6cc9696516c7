package state

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
)

var namePattern, _ = regexp.Compile("^[0-9a-z._-]+$")

var ErrInvalidConfig = errors.New("invalid config")

func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid name, must match pattern %s", s, namePattern.String())
	}
	if len(s) > 100 {
		return fmt.Errorf("len(\"%s\") = %d > 100 is too long", s, len(s))
	}
	return nil
}

func SessionConfigValidator(cfg *SessionCfg) error {
	if cfg.HoldDown <= 0 {
		return fmt.Errorf("%w: session.hold_down must be positive", ErrInvalidConfig)
	}
	if cfg.KeepaliveFraction < 1 {
		return fmt.Errorf("%w: session.keepalive_fraction must be at least 1", ErrInvalidConfig)
	}
	if cfg.Keepalive() <= 0 {
		return fmt.Errorf("%w: keepalive interval %s/%d rounds to zero", ErrInvalidConfig, cfg.HoldDown, cfg.KeepaliveFraction)
	}
	if cfg.MaxRoutes < 0 {
		return fmt.Errorf("%w: session.max_routes must not be negative", ErrInvalidConfig)
	}
	switch cfg.OpenPolicy {
	case OpenIgnore, OpenReset:
	default:
		return fmt.Errorf("%w: unknown open_policy %q", ErrInvalidConfig, cfg.OpenPolicy)
	}
	return nil
}

func RouterConfigValidator(cfg *RouterCfg) error {
	if err := NameValidator(cfg.Name); err != nil {
		return err
	}
	if cfg.AS == 0 {
		return fmt.Errorf("%w: router %s has no AS number", ErrInvalidConfig, cfg.Name)
	}
	for _, p := range cfg.Prefixes {
		if !p.IsValid() {
			return fmt.Errorf("%w: router %s has an invalid prefix", ErrInvalidConfig, cfg.Name)
		}
	}
	for as := range cfg.LocalPrefOverrides {
		if as == 0 {
			return fmt.Errorf("%w: router %s overrides local preference for AS 0", ErrInvalidConfig, cfg.Name)
		}
	}
	if cfg.StartDelay < 0 {
		return fmt.Errorf("%w: router %s has a negative start_delay", ErrInvalidConfig, cfg.Name)
	}
	return nil
}

func linkValidator(l LinkCfg, peerings []Pair[string, string]) error {
	if l.Latency < 0 || l.Jitter < 0 {
		return fmt.Errorf("%w: link %s-%s has negative latency", ErrInvalidConfig, l.A, l.B)
	}
	if l.Loss < 0 || l.Loss > 1 {
		return fmt.Errorf("%w: link %s-%s loss %v is not within [0, 1]", ErrInvalidConfig, l.A, l.B, l.Loss)
	}
	if l.A == "" && l.B == "" {
		return nil
	}
	if !slices.Contains(peerings, MakeSortedPair(l.A, l.B)) {
		return fmt.Errorf("%w: link %s-%s is not in the graph", ErrInvalidConfig, l.A, l.B)
	}
	return nil
}

func SimulationConfigValidator(cfg *SimulationCfg) error {
	if len(cfg.Routers) == 0 {
		return fmt.Errorf("%w: no routers defined", ErrInvalidConfig)
	}
	if err := SessionConfigValidator(&cfg.Session); err != nil {
		return err
	}
	seen := make(map[string]struct{})
	for i := range cfg.Routers {
		rt := &cfg.Routers[i]
		if err := RouterConfigValidator(rt); err != nil {
			return err
		}
		if _, ok := seen[rt.Name]; ok {
			return fmt.Errorf("%w: duplicate router %s", ErrInvalidConfig, rt.Name)
		}
		seen[rt.Name] = struct{}{}
	}
	peerings, err := cfg.Peerings()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := linkValidator(cfg.LinkDefault, peerings); err != nil {
		return err
	}
	for _, l := range cfg.Links {
		if err := linkValidator(l, peerings); err != nil {
			return err
		}
	}
	for _, ev := range cfg.Events {
		if _, ok := seen[ev.Router]; !ok {
			return fmt.Errorf("%w: event at %s refers to unknown router %q", ErrInvalidConfig, ev.At, ev.Router)
		}
		if ev.At < 0 {
			return fmt.Errorf("%w: event at %s is in the past", ErrInvalidConfig, ev.At)
		}
		switch ev.Action {
		case ActionLinkDown, ActionLinkUp:
			if !slices.Contains(peerings, MakeSortedPair(ev.Router, ev.Peer)) {
				return fmt.Errorf("%w: %s event between %s and %s, which do not peer", ErrInvalidConfig, ev.Action, ev.Router, ev.Peer)
			}
		case ActionOriginate, ActionWithdraw:
			if !ev.Prefix.IsValid() {
				return fmt.Errorf("%w: %s event needs a prefix", ErrInvalidConfig, ev.Action)
			}
		case ActionShutdown, ActionRevive:
		default:
			return fmt.Errorf("%w: unknown event action %q", ErrInvalidConfig, ev.Action)
		}
	}
	if cfg.Duration < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidConfig)
	}
	return nil
}
