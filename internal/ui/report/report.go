// Package report renders survey results for the terminal or as JSON.
package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/agent462/netsurvey/internal/classify"
	"github.com/agent462/netsurvey/internal/grouper"
	"github.com/agent462/netsurvey/internal/netinfo"
	"github.com/agent462/netsurvey/internal/runner"
)

// Color palette.
var (
	colorGreen  = lipgloss.Color("#04B575")
	colorRed    = lipgloss.Color("#FF4672")
	colorYellow = lipgloss.Color("#FDFF90")
	colorCyan   = lipgloss.Color("#00E5FF")
	colorSubtle = lipgloss.Color("#626262")
)

var (
	titleStyle   = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	ruleStyle    = lipgloss.NewStyle().Foreground(colorSubtle)
	keyStyle     = lipgloss.NewStyle().Bold(true)
	valueStyle   = lipgloss.NewStyle().Foreground(colorYellow)
	addrStyle    = lipgloss.NewStyle().Foreground(colorYellow)
	labelStyle   = lipgloss.NewStyle().Foreground(colorCyan)
	ghostStyle   = lipgloss.NewStyle().Foreground(colorRed)
	summaryStyle = lipgloss.NewStyle().Foreground(colorGreen)
)

const (
	rule       = "─────────────────────────────────────────────────"
	addrWidth  = 18
	labelWidth = 20
)

// Formatter formats survey sections for terminal display.
type Formatter struct {
	JSON    bool
	Color   bool
	ShowAll bool // include hosts that failed re-verification
}

// NewFormatter creates a Formatter with the given options.
func NewFormatter(jsonOutput, color, showAll bool) *Formatter {
	return &Formatter{
		JSON:    jsonOutput,
		Color:   color,
		ShowAll: showAll,
	}
}

// Settings are the scan parameters shown in the header.
type Settings struct {
	Workers  int
	Mode     string
	Port     int
	Thorough bool
}

// FormatInfo renders the local network and scanner settings panel.
func (f *Formatter) FormatInfo(info *netinfo.Info, s Settings) string {
	var b strings.Builder

	f.writeTitle(&b, "SYSTEM INFORMATION")
	if info != nil {
		f.writeField(&b, "NETWORK INTERFACE", info.Interface)
		f.writeField(&b, "LOCAL IP ADDRESS", info.LocalIP.String())
		f.writeField(&b, "SUBNET MASK", info.Mask())
		gw := "Not detected"
		if info.HasGateway() {
			gw = info.Gateway.String()
			if len(info.GatewayMAC) > 0 {
				gw += " (" + info.GatewayMAC.String() + ")"
			}
		}
		f.writeField(&b, "GATEWAY IP ADDRESS", gw)
	} else {
		f.writeField(&b, "NETWORK INTERFACE", "Not detected")
	}
	b.WriteString("\n")

	f.writeTitle(&b, "SCANNER SETTINGS")
	f.writeField(&b, "THREADS", fmt.Sprint(s.Workers))
	f.writeField(&b, "SCAN MODE", s.Mode)
	if s.Mode == "tcp" || s.Mode == "fallback" {
		f.writeField(&b, "TCP PORT", fmt.Sprint(s.Port))
	}
	if s.Thorough {
		f.writeStyledField(&b, "SCAN TYPE", "Thorough", ghostStyle)
	}
	return b.String()
}

// Format renders every section as a results table followed by a per-label
// summary.
func (f *Formatter) Format(sections []*runner.Section) string {
	var b strings.Builder
	for i, sec := range sections {
		if i > 0 {
			b.WriteString("\n")
		}
		f.writeSection(&b, sec)
	}
	return b.String()
}

func (f *Formatter) writeSection(b *strings.Builder, sec *runner.Section) {
	hosts := f.visible(sec)
	b.WriteString(f.style("[+] "+f.foundLine(sec), summaryStyle))
	b.WriteString("\n\n")

	f.writeTitle(b, "SCAN RESULTS "+sec.Network)
	if sec.Classified {
		b.WriteString(f.style(pad("IP ADDRESS", addrWidth), keyStyle) + "| " + f.style("DEVICE TYPE", keyStyle) + "\n")
	} else {
		b.WriteString(f.style("IP ADDRESS", keyStyle) + "\n")
	}
	b.WriteString(f.style(rule, ruleStyle) + "\n")

	for _, h := range hosts {
		if !sec.Classified {
			b.WriteString(f.style(h.Addr.String(), addrStyle) + "\n")
			continue
		}
		ls := labelStyle
		if !h.Confirmed() {
			ls = ghostStyle
		}
		b.WriteString(f.style(pad(h.Addr.String(), addrWidth), addrStyle) + "| " + f.style(string(h.Label), ls) + "\n")
	}

	if sec.Classified && len(sec.Hosts) > 0 {
		b.WriteString("\n")
		f.writeTitle(b, "DEVICE SUMMARY")
		f.writeSummary(b, grouper.Group(sec.Hosts))
	}
}

func (f *Formatter) foundLine(sec *runner.Section) string {
	total := len(sec.Hosts)
	if !sec.Classified || f.ShowAll {
		return fmt.Sprintf("Found %d live hosts", total)
	}
	return fmt.Sprintf("Found %d confirmed live hosts out of %d total hosts detected", len(sec.Confirmed()), total)
}

func (f *Formatter) writeSummary(b *strings.Builder, gr *grouper.Grouped) {
	for _, g := range gr.Groups {
		n := len(g.Hosts)
		line := fmt.Sprintf(" %3d  %s", n, g.Label)
		b.WriteString(f.style(line, labelStyle))
		b.WriteString("\n")
	}
	if n := len(gr.Ghosts); n > 0 {
		line := fmt.Sprintf(" %3d  %s", n, classify.LabelGhost)
		if !f.ShowAll {
			line += " (hidden, use --show-all)"
		}
		b.WriteString(f.style(line, ghostStyle))
		b.WriteString("\n")
	}
}

// visible returns the hosts the table should list.
func (f *Formatter) visible(sec *runner.Section) []classify.Host {
	if f.ShowAll || !sec.Classified {
		return sec.Hosts
	}
	return sec.Confirmed()
}

type jsonHost struct {
	IP        string `json:"ip"`
	Label     string `json:"label,omitempty"`
	Confirmed bool   `json:"confirmed"`
}

type jsonSection struct {
	Network          string     `json:"network"`
	Range            string     `json:"range"`
	Mode             string     `json:"mode"`
	Classified       bool       `json:"classified"`
	ScanDuration     string     `json:"scan_duration"`
	ClassifyDuration string     `json:"classify_duration,omitempty"`
	Total            int        `json:"total"`
	Hosts            []jsonHost `json:"hosts"`
}

// FormatJSON serializes sections as a JSON array. Unconfirmed hosts are
// included only with ShowAll.
func (f *Formatter) FormatJSON(sections []*runner.Section) ([]byte, error) {
	out := make([]jsonSection, len(sections))
	for i, sec := range sections {
		js := jsonSection{
			Network:      sec.Network,
			Range:        sec.Range,
			Mode:         sec.Mode,
			Classified:   sec.Classified,
			ScanDuration: sec.ScanDuration.String(),
			Total:        len(sec.Hosts),
			Hosts:        []jsonHost{},
		}
		if sec.Classified {
			js.ClassifyDuration = sec.ClassifyDuration.String()
		}
		for _, h := range f.visible(sec) {
			js.Hosts = append(js.Hosts, jsonHost{
				IP:        h.Addr.String(),
				Label:     string(h.Label),
				Confirmed: h.Confirmed(),
			})
		}
		out[i] = js
	}
	return json.MarshalIndent(out, "", "  ")
}

func (f *Formatter) writeTitle(b *strings.Builder, title string) {
	b.WriteString(f.style("[ "+title+" ]", titleStyle))
	b.WriteString("\n")
	b.WriteString(f.style(rule, ruleStyle))
	b.WriteString("\n")
}

func (f *Formatter) writeField(b *strings.Builder, key, value string) {
	f.writeStyledField(b, key, value, valueStyle)
}

func (f *Formatter) writeStyledField(b *strings.Builder, key, value string, s lipgloss.Style) {
	b.WriteString(f.style(pad(key, labelWidth), keyStyle))
	b.WriteString("| ")
	b.WriteString(f.style(value, s))
	b.WriteString("\n")
}

func (f *Formatter) style(text string, s lipgloss.Style) string {
	if !f.Color {
		return text
	}
	return s.Render(text)
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s + " "
	}
	return s + strings.Repeat(" ", width-len(s))
}
