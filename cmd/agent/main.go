package main

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vm-health-agent/internal/agent"
	"vm-health-agent/internal/agent/version"
	"vm-health-agent/internal/config"
)

type flags struct {
	all         bool
	project     string
	parallel    int
	window      time.Duration
	output      string
	watch       time.Duration
	provider    string
	noColor     bool
	projectFile string
	serve       string
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "vm-health-agent (--all | --project ID | --serve ADDR)",
		Short: "Project VM health report",
		Long: `vm-health-agent polls CPU utilization, memory usage and running VM count for
cloud projects over a trailing window and prints a per-project and per-instance summary.
With --serve it runs a small web front-end that reports the project picked in the browser.`,
		Version:      version.Get().String(),
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := applyFlags(cmd, &cfg, f); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			projects, err := cfg.Select(f.all, f.project)
			if errors.Is(err, config.ErrNoProjectSelected) && cfg.Serving() {
				projects, err = cfg.Select(true, "")
			}
			if errors.Is(err, config.ErrNoProjectSelected) {
				_ = cmd.Help()
			}
			if err != nil {
				return err
			}

			logger, closer := agent.BuildLogger(cfg)
			defer func() { _ = closer.Close() }()
			if f.project != "" && !cfg.Configured(f.project) {
				logger.Debug("polling project outside the configured list", "project_id", f.project)
			}

			a, err := agent.New(cfg, logger, cmd.OutOrStdout())
			if err != nil {
				logger.Error("agent initialization failed", "error", err)
				return err
			}
			if err := a.Run(cmd.Context(), projects); err != nil {
				logger.Error("agent run failed", "error", err)
				return err
			}
			return nil
		},
	}

	fs := cmd.Flags()
	fs.BoolVar(&f.all, "all", false, "poll every configured project")
	fs.StringVar(&f.project, "project", "", "poll a single project id")
	fs.IntVar(&f.parallel, "parallel", 1, "number of projects polled concurrently")
	fs.DurationVar(&f.window, "window", 10*time.Minute, "trailing window to average over")
	fs.StringVarP(&f.output, "output", "o", config.OutputText, "output format: text or json")
	fs.DurationVar(&f.watch, "watch", 0, "repeat the poll on this interval until interrupted")
	fs.StringVar(&f.provider, "provider", string(config.ProviderGCP), "metric backend: gcp or libvirt")
	fs.BoolVar(&f.noColor, "no-color", false, "disable colored output")
	fs.StringVar(&f.projectFile, "projects-file", "", "TOML file with the project list")
	fs.StringVar(&f.serve, "serve", "", "serve the web front-end on this address instead of printing")
	cmd.MarkFlagsMutuallyExclusive("all", "project")

	return cmd
}

// applyFlags overrides configuration with the flags set on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config, f flags) error {
	fs := cmd.Flags()
	if fs.Changed("projects-file") {
		cfg.ProjectsFile = f.projectFile
		if err := cfg.ApplyProjectsFile(f.projectFile); err != nil {
			return err
		}
	}
	if fs.Changed("parallel") {
		cfg.Parallelism = f.parallel
	}
	if fs.Changed("window") {
		cfg.Window = f.window
	}
	if fs.Changed("output") {
		cfg.Output = strings.ToLower(f.output)
	}
	if fs.Changed("watch") {
		cfg.WatchInterval = f.watch
	}
	if fs.Changed("provider") {
		cfg.Provider = config.Provider(strings.ToLower(f.provider))
	}
	if fs.Changed("no-color") {
		cfg.NoColor = f.noColor
	}
	if fs.Changed("serve") {
		cfg.ServeAddr = f.serve
	}
	return nil
}
