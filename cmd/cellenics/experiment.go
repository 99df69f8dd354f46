package main

import (
	"fmt"
	"os"

	"cellenics/internal/metrics"
	"cellenics/internal/replicate"

	"github.com/spf13/cobra"
)

type cloneFlags struct {
	origin, destination string
	sandboxID           string
	grantUsers          []string
	skipNamespaceCheck  bool
	metricsFile         string
}

func newCloneCmd(a *app) *cobra.Command {
	var f cloneFlags
	cmd := &cobra.Command{
		Use:   "clone EXPERIMENT_ID...",
		Short: "Clone experiments and everything they own into a sandbox",
		Long: `Clone copies each experiment from the origin environment into the
destination environment. Every id in the copy is prefixed with the sandbox id,
so clones never collide with their originals or with other sandboxes.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.clone(cmd, args, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.origin, "origin", "production", "environment to copy from")
	fl.StringVar(&f.destination, "destination", "staging", "environment to copy into")
	fl.StringVar(&f.sandboxID, "sandbox-id", "", "namespace of the clone (generated when empty)")
	fl.StringSliceVar(&f.grantUsers, "grant-user", nil, "user granted write access on the cloned experiments")
	fl.BoolVar(&f.skipNamespaceCheck, "skip-namespace-check", false, "do not scan for experiments named like the sandbox id")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics of the run to this file")
	return cmd
}

func (a *app) clone(cmd *cobra.Command, ids []string, f cloneFlags) error {
	b := a.backends()
	defer func() {
		if err := b.Close(); err != nil {
			a.log.Warn("closing stores", "error", err)
		}
	}()
	coord, err := a.coordinator(b)
	if err != nil {
		return err
	}

	sandbox := f.sandboxID
	if sandbox == "" {
		sandbox = string(replicate.GenerateNamespace(os.Getenv("USER")))
		a.log.Info("generated sandbox id", "sandbox_id", sandbox)
	}
	summary, err := coord.Replicate(cmd.Context(), replicate.Request{
		RootIDs:        ids,
		Namespace:      sandbox,
		Origin:         f.origin,
		Destination:    f.destination,
		CheckNamespace: !f.skipNamespaceCheck,
		Writers:        f.grantUsers,
	})
	if werr := metrics.WriteFile(a.reg, f.metricsFile); werr != nil {
		a.log.Warn("writing metrics file", "path", f.metricsFile, "error", werr)
	}
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if _, err := fmt.Fprintf(out, "Sandbox id: %s\n\n", sandbox); err != nil {
		return err
	}
	return summary.Render(out)
}

func newListCmd(a *app) *cobra.Command {
	var env, sandboxID string
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List experiments of an environment that can be cloned",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var ns replicate.Namespace
			if sandboxID != "" {
				parsed, err := replicate.ParseNamespace(sandboxID)
				if err != nil {
					return err
				}
				ns = parsed
			}
			b := a.backends()
			defer func() { _ = b.Close() }()
			coord, err := a.coordinator(b)
			if err != nil {
				return err
			}
			ids, err := coord.Candidates(cmd.Context(), env, ns)
			if err != nil {
				return err
			}
			for _, id := range ids {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), id); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&env, "env", "production", "environment to list")
	cmd.Flags().StringVar(&sandboxID, "sandbox-id", "", "hide experiments already cloned into this sandbox")
	return cmd
}

func newSandboxIDCmd() *cobra.Command {
	var nick string
	cmd := &cobra.Command{
		Use:   "sandbox-id",
		Short: "Print a fresh random sandbox id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), replicate.GenerateNamespace(nick))
			return err
		},
	}
	cmd.Flags().StringVar(&nick, "nick", os.Getenv("USER"), "leading fragment of the id")
	return cmd
}
