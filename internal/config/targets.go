package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Target is one network to scan with its resolved per-group overrides.
type Target struct {
	Network string // CIDR as given; parsed by the scanner
	Group   string // empty for networks given on the command line
	Mode    string
	Port    int
	Timeout time.Duration
}

// ResolveTargets combines the networks of a config group with networks given
// on the command line. Group networks come first; duplicates are dropped,
// keeping the first occurrence.
func ResolveTargets(cfg *Config, groupName string, cliNetworks []string) ([]Target, error) {
	if groupName == "" && len(cliNetworks) == 0 {
		return nil, fmt.Errorf("no networks specified: provide a group (-g) or a CIDR as argument")
	}

	var targets []Target
	seen := make(map[string]bool)
	add := func(t Target) {
		t.Network = strings.TrimSpace(t.Network)
		if t.Network == "" || seen[t.Network] {
			return
		}
		seen[t.Network] = true
		targets = append(targets, t)
	}

	if groupName != "" {
		group, ok := cfg.Groups[groupName]
		if !ok {
			available := make([]string, 0, len(cfg.Groups))
			for name := range cfg.Groups {
				available = append(available, name)
			}
			if len(available) == 0 {
				return nil, fmt.Errorf("group %q not found (no groups defined)", groupName)
			}
			slices.Sort(available)
			return nil, fmt.Errorf("group %q not found (available: %v)", groupName, available)
		}
		for _, n := range group.Networks {
			add(Target{
				Network: n,
				Group:   groupName,
				Mode:    group.Mode,
				Port:    group.Port,
				Timeout: group.Timeout.Duration,
			})
		}
	}

	for _, n := range cliNetworks {
		add(Target{Network: n})
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("no networks specified")
	}
	return targets, nil
}
