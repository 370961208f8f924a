package grouper

import (
	"cmp"
	"net/netip"
	"slices"

	"github.com/agent462/netsurvey/internal/classify"
)

// LabelGroup is a set of hosts that received the same label.
type LabelGroup struct {
	Label    classify.Label
	Hosts    []netip.Addr
	Dominant bool // true for the largest group
}

// Grouped holds classified hosts bucketed by label.
type Grouped struct {
	Groups []LabelGroup
	Ghosts []netip.Addr
	Total  int
}

// Confirmed returns the number of hosts that passed re-verification.
func (g *Grouped) Confirmed() int {
	return g.Total - len(g.Ghosts)
}

// Group buckets confirmed hosts by label and collects ghosts separately.
// Groups are ordered largest first, ties broken by label; addresses within a
// group are ascending.
func Group(hosts []classify.Host) *Grouped {
	gr := &Grouped{Total: len(hosts)}

	byLabel := make(map[classify.Label][]netip.Addr)
	for _, h := range hosts {
		if !h.Confirmed() {
			gr.Ghosts = append(gr.Ghosts, h.Addr)
			continue
		}
		byLabel[h.Label] = append(byLabel[h.Label], h.Addr)
	}
	slices.SortFunc(gr.Ghosts, netip.Addr.Compare)

	for label, addrs := range byLabel {
		slices.SortFunc(addrs, netip.Addr.Compare)
		gr.Groups = append(gr.Groups, LabelGroup{Label: label, Hosts: addrs})
	}
	slices.SortFunc(gr.Groups, func(a, b LabelGroup) int {
		if c := cmp.Compare(len(b.Hosts), len(a.Hosts)); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})

	if len(gr.Groups) > 0 {
		gr.Groups[0].Dominant = true
	}
	return gr
}
