package main

import (
	"bytes"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agent462/netsurvey/internal/classify"
	"github.com/agent462/netsurvey/internal/config"
	"github.com/agent462/netsurvey/internal/netinfo"
	"github.com/agent462/netsurvey/internal/probe"
	"github.com/agent462/netsurvey/internal/ui/report"
)

func TestApplyFlagsOnlyChanged(t *testing.T) {
	cmd := newRootCmd()
	for name, value := range map[string]string{
		"threads":     "8",
		"no-classify": "true",
		"json":        "true",
	} {
		if err := cmd.Flags().Set(name, value); err != nil {
			t.Fatalf("set %s: %v", name, err)
		}
	}

	cfg := config.DefaultConfig()
	cfg.Defaults.Port = 8080
	applyFlags(cmd, cfg, rootFlags{threads: 8, noClassify: true, json: true, port: 22})

	d := cfg.Defaults
	if d.Workers != 8 {
		t.Errorf("Workers = %d, want 8", d.Workers)
	}
	if d.Classify {
		t.Error("Classify should be disabled by --no-classify")
	}
	if d.Output != "json" {
		t.Errorf("Output = %q, want json", d.Output)
	}
	if d.Port != 8080 {
		t.Errorf("Port = %d, unset flag must not override config", d.Port)
	}
}

func TestResolveTargetsDefaultsToLocalSubnet(t *testing.T) {
	info := &netinfo.Info{
		LocalIP: netip.MustParseAddr("192.168.1.23"),
		Gateway: netip.MustParseAddr("10.0.0.1"),
	}
	cfg := config.DefaultConfig()

	targets, err := resolveTargets(cfg, rootFlags{}, nil, info)
	if err != nil {
		t.Fatalf("resolveTargets: %v", err)
	}
	if len(targets) != 1 || targets[0].Network != "192.168.1.0/24" {
		t.Errorf("targets = %+v, want the local /24", targets)
	}

	targets, err = resolveTargets(cfg, rootFlags{gateway: true}, nil, info)
	if err != nil {
		t.Fatalf("resolveTargets: %v", err)
	}
	if len(targets) != 2 || targets[1].Network != "10.0.0.0/24" {
		t.Errorf("targets = %+v, want local and gateway /24", targets)
	}
}

func TestResolveTargetsGatewayInSameSubnet(t *testing.T) {
	info := &netinfo.Info{
		LocalIP: netip.MustParseAddr("192.168.1.23"),
		Gateway: netip.MustParseAddr("192.168.1.1"),
	}
	targets, err := resolveTargets(config.DefaultConfig(), rootFlags{gateway: true}, nil, info)
	if err != nil {
		t.Fatalf("resolveTargets: %v", err)
	}
	if len(targets) != 1 {
		t.Errorf("targets = %+v, want a single network", targets)
	}
}

func TestResolveTargetsExplicit(t *testing.T) {
	targets, err := resolveTargets(config.DefaultConfig(), rootFlags{}, []string{"10.1.0.0/16"}, nil)
	if err != nil {
		t.Fatalf("resolveTargets: %v", err)
	}
	if len(targets) != 1 || targets[0].Network != "10.1.0.0/16" {
		t.Errorf("targets = %+v", targets)
	}

	if _, err := resolveTargets(config.DefaultConfig(), rootFlags{}, nil, nil); err == nil {
		t.Error("expected an error without networks or local info")
	}
}

func TestTargetOptionsGroupOverrides(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Defaults.Thorough = true
	services := classify.DefaultServiceTable()

	opts, tr, err := targetOptions(cfg, config.Target{Network: "10.0.0.0/24"}, probe.ModeFallback, &services)
	if err != nil {
		t.Fatalf("targetOptions: %v", err)
	}
	if opts.Mode != probe.ModeFallback || opts.Port != 80 || !opts.Thorough {
		t.Errorf("defaults not applied: %+v", opts)
	}
	if nt := tr.(*probe.NetTransport); nt.Timeout() != time.Second {
		t.Errorf("timeout = %v, want 1s", nt.Timeout())
	}

	tg := config.Target{Network: "10.0.0.0/24", Group: "lab", Mode: "tcp", Port: 22, Timeout: 300 * time.Millisecond}
	opts, tr, err = targetOptions(cfg, tg, probe.ModeFallback, &services)
	if err != nil {
		t.Fatalf("targetOptions: %v", err)
	}
	if opts.Mode != probe.ModeTCP || opts.Port != 22 {
		t.Errorf("group overrides not applied: %+v", opts)
	}
	if nt := tr.(*probe.NetTransport); nt.Timeout() != 300*time.Millisecond {
		t.Errorf("timeout = %v, want 300ms", nt.Timeout())
	}

	if _, _, err := targetOptions(cfg, config.Target{Group: "lab", Mode: "arp"}, probe.ModeFallback, &services); err == nil {
		t.Error("expected an error for an unknown group mode")
	}
}

func TestConfigInitWritesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netsurvey", "config.yaml")

	cmd := newConfigCmd()
	cmd.SetArgs([]string{"init", "--path", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("loading written config: %v", err)
	}
	if _, ok := cfg.Groups["home"]; !ok {
		t.Errorf("expected an example group, got %+v", cfg.Groups)
	}

	cmd = newConfigCmd()
	cmd.SetArgs([]string{"init", "--path", path})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("expected refusal to overwrite, got %v", err)
	}

	cmd = newConfigCmd()
	cmd.SetArgs([]string{"init", "--path", path, "--force"})
	if err := cmd.Execute(); err != nil {
		t.Errorf("config init --force: %v", err)
	}
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := newVersionCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out.String(), "netsurvey dev") {
		t.Errorf("version output = %q", out.String())
	}
}

func TestWriteResultsText(t *testing.T) {
	var out bytes.Buffer
	if err := writeResults(&out, report.NewFormatter(false, false, false), nil); err != nil {
		t.Fatalf("writeResults: %v", err)
	}
	if out.String() != "\n" {
		t.Errorf("empty text output = %q", out.String())
	}

	out.Reset()
	if err := writeResults(&out, report.NewFormatter(true, false, false), nil); err != nil {
		t.Fatalf("writeResults: %v", err)
	}
	if strings.TrimSpace(out.String()) != "[]" {
		t.Errorf("empty JSON output = %q", out.String())
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("NETSURVEY_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Defaults.Port != 80 {
		t.Errorf("Port = %d, want default 80", cfg.Defaults.Port)
	}

	if _, err := loadConfig(filepath.Join(os.TempDir(), "netsurvey-definitely-missing.yaml")); err == nil {
		t.Error("expected an error for an explicit missing config file")
	}
}
