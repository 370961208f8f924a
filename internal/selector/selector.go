// Package selector filters survey results with @-selectors, e.g.
// "@confirmed", "@Router" or "@192.168.1.1*".
package selector

import (
	"fmt"
	"net/netip"
	"path"
	"strings"

	"github.com/agent462/netsurvey/internal/classify"
	"github.com/agent462/netsurvey/internal/grouper"
)

// Selector is a parsed, comma-separated list of @-terms. A host is selected
// when any term matches it.
type Selector struct {
	terms []string
}

// Parse parses a selector string. An empty selector, like @all, selects
// every host. Other names are path.Match globs tried against the address
// and the label; note that * does not match '/'.
func Parse(sel string) (*Selector, error) {
	s := &Selector{}
	for _, part := range strings.Split(sel, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, "@") {
			return nil, fmt.Errorf("invalid selector %q: must start with @", part)
		}
		name := part[1:]
		if name == "" {
			return nil, fmt.Errorf("invalid selector %q: empty name", part)
		}
		if name == "all" {
			return &Selector{}, nil
		}
		if !isKeyword(name) {
			if _, err := path.Match(name, ""); err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", name, err)
			}
		}
		s.terms = append(s.terms, name)
	}
	return s, nil
}

func isKeyword(name string) bool {
	switch name {
	case "confirmed", "ghost", "dominant", "other":
		return true
	}
	return false
}

// All reports whether the selector selects every host.
func (s *Selector) All() bool {
	return len(s.terms) == 0
}

// Filter returns the selected hosts in their original order.
func (s *Selector) Filter(hosts []classify.Host) []classify.Host {
	if s.All() {
		return hosts
	}

	var dominant map[netip.Addr]bool
	for _, t := range s.terms {
		if t == "dominant" || t == "other" {
			dominant = dominantSet(hosts)
			break
		}
	}

	out := []classify.Host{}
	for _, h := range hosts {
		for _, t := range s.terms {
			if s.match(t, h, dominant) {
				out = append(out, h)
				break
			}
		}
	}
	return out
}

func (s *Selector) match(term string, h classify.Host, dominant map[netip.Addr]bool) bool {
	switch term {
	case "confirmed":
		return h.Confirmed()
	case "ghost":
		return !h.Confirmed()
	case "dominant":
		return dominant[h.Addr]
	case "other":
		// non-dominant confirmed hosts
		return h.Confirmed() && !dominant[h.Addr]
	}
	if ok, _ := path.Match(term, h.Addr.String()); ok {
		return true
	}
	ok, _ := path.Match(term, string(h.Label))
	return ok
}

// dominantSet returns the addresses of the largest label group.
func dominantSet(hosts []classify.Host) map[netip.Addr]bool {
	set := make(map[netip.Addr]bool)
	for _, g := range grouper.Group(hosts).Groups {
		if g.Dominant {
			for _, a := range g.Hosts {
				set[a] = true
			}
		}
	}
	return set
}
