package main

import (
	"io"
	"log/slog"

	"cellenics/internal/config"
	"cellenics/internal/entitymodel"
	"cellenics/internal/replicate"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// app carries the state shared by subcommands once flags are parsed.
type app struct {
	stdout, stderr io.Writer

	configPath string
	verbose    bool

	cfg *config.Config
	log *slog.Logger
	reg *prometheus.Registry
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "cellenics",
		Short:         "Replicate experiments between environments",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.init()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file (default $CELLENICS_CONFIG)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log every copied item")

	experiment := &cobra.Command{
		Use:   "experiment",
		Short: "Clone and list experiments",
	}
	experiment.AddCommand(newCloneCmd(a), newListCmd(a))
	root.AddCommand(experiment, newSandboxIDCmd())
	return root
}

func (a *app) init() error {
	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	a.log = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.reg = prometheus.NewRegistry()
	return nil
}

// newBackends opens the stores named by the configuration. Tests replace it.
var newBackends = func(cfg *config.Config, catalog *entitymodel.Catalog, log *slog.Logger) backendCloser {
	return openBackends(cfg, catalog, log)
}

func (a *app) backends() backendCloser {
	return newBackends(a.cfg, entitymodel.Default(), a.log)
}

func (a *app) coordinator(b replicate.Backends) (*replicate.Coordinator, error) {
	opts := a.cfg.ScanOptions()
	opts.Logger = a.log
	return replicate.NewCoordinator(b, replicate.Options{
		Catalog:    entitymodel.Default(),
		NamingEnv:  a.cfg.NamingEnv,
		Protected:  a.cfg.Protected,
		Scan:       opts,
		Registerer: a.reg,
		Logger:     a.log,
	})
}
