package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/gologger/levels"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/agent462/netsurvey/internal/classify"
	"github.com/agent462/netsurvey/internal/config"
	"github.com/agent462/netsurvey/internal/netinfo"
	"github.com/agent462/netsurvey/internal/pathutil"
	"github.com/agent462/netsurvey/internal/probe"
	"github.com/agent462/netsurvey/internal/runner"
	"github.com/agent462/netsurvey/internal/selector"
	"github.com/agent462/netsurvey/internal/ui/report"
)

type rootFlags struct {
	configPath string
	group      string
	threads    int
	mode       string
	port       int
	timeout    time.Duration
	thorough   bool
	showAll    bool
	skipScan   bool
	noClassify bool
	gateway    bool
	only       string
	json       bool
	noColor    bool
	verbose    bool
	silent     bool
}

func newRootCmd() *cobra.Command {
	var f rootFlags

	cmd := &cobra.Command{
		Use:   "netsurvey [cidr...]",
		Short: "Discover and classify live hosts on IPv4 networks",
		Long: `netsurvey probes every address of one or more IPv4 networks and labels
each live host (reverse DNS name, well-known device signature, open service,
or a guess). Without arguments it scans the /24 of the primary interface.`,
		Example: `  netsurvey
  netsurvey 192.168.1.0/24 --mode tcp --port 22
  netsurvey -g office --thorough --json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSurvey(cmd, f, args)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.configPath, "config", "", "config file (default "+config.DefaultConfigPath()+")")
	fl.StringVarP(&f.group, "group", "g", "", "scan the networks of a config group")
	fl.IntVarP(&f.threads, "threads", "t", 0, "concurrent probes (default: CPU count)")
	fl.StringVarP(&f.mode, "mode", "m", "", "probe mode: icmp, tcp or fallback (default fallback)")
	fl.IntVarP(&f.port, "port", "p", 0, "TCP port for tcp and fallback modes (default 80)")
	fl.DurationVar(&f.timeout, "timeout", 0, "per-probe timeout (default 1s)")
	fl.BoolVar(&f.thorough, "thorough", false, "require two of ICMP, TCP 80, 443 and 22 to agree")
	fl.BoolVar(&f.showAll, "show-all", false, "include unconfirmed hosts in the results")
	fl.BoolVar(&f.skipScan, "skip-scan", false, "only show network information")
	fl.BoolVar(&f.noClassify, "no-classify", false, "list live addresses without classifying them")
	fl.BoolVar(&f.gateway, "gateway", false, "also scan the gateway /24 when it differs from the local one")
	fl.StringVar(&f.only, "only", "", "only report hosts matching a selector: @confirmed, @ghost, @dominant, @other or an @address/label glob")
	fl.BoolVar(&f.json, "json", false, "write results as JSON")
	fl.BoolVar(&f.noColor, "no-color", false, "disable colored output")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "show debug logs")
	fl.BoolVar(&f.silent, "silent", false, "only print results")

	cmd.AddCommand(newVersionCmd(), newConfigCmd())
	return cmd
}

func runSurvey(cmd *cobra.Command, f rootFlags, args []string) error {
	switch {
	case f.silent:
		gologger.DefaultLogger.SetMaxLevel(levels.LevelSilent)
	case f.verbose:
		gologger.DefaultLogger.SetMaxLevel(levels.LevelDebug)
	}

	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg, f)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	baseMode, err := probe.ParseMode(cfg.Defaults.Mode)
	if err != nil {
		return err
	}
	sel, err := selector.Parse(f.only)
	if err != nil {
		return err
	}

	stdout := cmd.OutOrStdout()
	color := !f.noColor && isTerminal(os.Stdout)
	formatter := report.NewFormatter(cfg.Defaults.Output == "json", color, cfg.Defaults.ShowAll)

	info, err := netinfo.Detect()
	if err != nil {
		gologger.Warning().Msgf("could not detect local network: %v", err)
	}

	if !formatter.JSON && !f.silent {
		workers := cfg.Defaults.Workers
		if workers == 0 {
			workers = runtime.NumCPU()
		}
		fmt.Fprintln(stdout, formatter.FormatInfo(info, report.Settings{
			Workers:  workers,
			Mode:     baseMode.String(),
			Port:     cfg.Defaults.Port,
			Thorough: cfg.Defaults.Thorough,
		}))
	}

	if f.skipScan {
		gologger.Info().Msgf("Skipping network scan as requested")
		return nil
	}

	targets, err := resolveTargets(cfg, f, args, info)
	if err != nil {
		return err
	}

	services := classify.DefaultServiceTable().With(cfg.Services)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var printer *report.Printer
	if !f.silent && isTerminal(os.Stderr) {
		printer = report.NewPrinter(os.Stderr, color)
	}

	var sections []*runner.Section
	for _, tg := range targets {
		opts, transport, err := targetOptions(cfg, tg, baseMode, &services)
		if err != nil {
			return err
		}
		if printer != nil {
			opts.OnScanProgress = printer.Func("scan    ")
			opts.OnClassifyProgress = printer.Func("classify")
		}

		sec, err := runner.New(opts, transport).Run(ctx, tg.Network)
		if printer != nil {
			printer.Clear()
		}
		if err != nil {
			return err
		}
		sec.Hosts = sel.Filter(sec.Hosts)
		sections = append(sections, sec)

		if ctx.Err() != nil {
			gologger.Warning().Msgf("interrupted, skipping remaining networks")
			break
		}
	}

	return writeResults(stdout, formatter, sections)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadDefault()
	}
	return config.Load(pathutil.ExpandHome(path))
}

// applyFlags overrides config defaults with flags the user actually set.
func applyFlags(cmd *cobra.Command, cfg *config.Config, f rootFlags) {
	fl := cmd.Flags()
	d := &cfg.Defaults
	if fl.Changed("threads") {
		d.Workers = f.threads
	}
	if fl.Changed("mode") {
		d.Mode = f.mode
	}
	if fl.Changed("port") {
		d.Port = f.port
	}
	if fl.Changed("timeout") {
		d.Timeout = config.Duration{Duration: f.timeout}
	}
	if fl.Changed("thorough") {
		d.Thorough = f.thorough
	}
	if fl.Changed("show-all") {
		d.ShowAll = f.showAll
	}
	if fl.Changed("no-classify") {
		d.Classify = !f.noClassify
	}
	if fl.Changed("json") && f.json {
		d.Output = "json"
	}
}

// resolveTargets picks the networks to scan: a config group and explicit
// CIDRs, or else the local /24 and optionally the gateway /24.
func resolveTargets(cfg *config.Config, f rootFlags, args []string, info *netinfo.Info) ([]config.Target, error) {
	if f.group != "" || len(args) > 0 {
		return config.ResolveTargets(cfg, f.group, args)
	}
	if info == nil {
		return nil, errors.New("no network given and the local network could not be detected")
	}

	networks := []string{netinfo.Subnet24(info.LocalIP)}
	if f.gateway {
		if !info.HasGateway() {
			gologger.Warning().Msgf("no gateway detected, scanning the local subnet only")
		} else if gw := netinfo.Subnet24(info.Gateway); gw != networks[0] {
			gologger.Info().Msgf("Gateway %s is in a different subnet (%s)", info.Gateway, gw)
			networks = append(networks, gw)
		}
	}
	return config.ResolveTargets(cfg, "", networks)
}

// targetOptions builds runner options for one target, applying its group
// overrides on top of the defaults.
func targetOptions(cfg *config.Config, tg config.Target, baseMode probe.Mode, services *classify.ServiceTable) (runner.Options, probe.Transport, error) {
	d := cfg.Defaults

	mode := baseMode
	if tg.Mode != "" {
		m, err := probe.ParseMode(tg.Mode)
		if err != nil {
			return runner.Options{}, nil, fmt.Errorf("group %q: %w", tg.Group, err)
		}
		mode = m
	}
	port := d.Port
	if tg.Port != 0 {
		port = tg.Port
	}
	timeout := d.Timeout.Duration
	if tg.Timeout > 0 {
		timeout = tg.Timeout
	}

	opts := runner.Options{
		Mode:                mode,
		Thorough:            d.Thorough,
		Port:                port,
		Workers:             d.Workers,
		Classify:            d.Classify,
		ClassifyConcurrency: d.ClassifyConcurrency,
		Services:            services,
	}
	return opts, probe.NewNetTransport(probe.WithTimeout(timeout)), nil
}

func writeResults(w io.Writer, f *report.Formatter, sections []*runner.Section) error {
	if f.JSON {
		data, err := f.FormatJSON(sections)
		if err != nil {
			return fmt.Errorf("encoding results: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	_, err := fmt.Fprint(w, strings.TrimRight(f.Format(sections), "\n")+"\n")
	return err
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
