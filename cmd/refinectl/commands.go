package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Harshitk-cp/refinery/internal/buildconfig"
	"github.com/Harshitk-cp/refinery/internal/config"
	"github.com/Harshitk-cp/refinery/internal/knowledge"
	"github.com/Harshitk-cp/refinery/internal/layer"
	"github.com/Harshitk-cp/refinery/internal/persona"
	"github.com/Harshitk-cp/refinery/internal/service"
	"github.com/Harshitk-cp/refinery/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type simulateOptions struct {
	query      string
	hints      []string
	target     float64
	seed       uint64
	maxPasses  int
	policyPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "refinectl",
		Short:         "Run and inspect multi-pass refinement sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.Load()
		},
	}
	root.AddCommand(newSimulateCmd(), newPolicyCmd(), newVersionCmd())
	return root
}

func newSimulateCmd() *cobra.Command {
	var opts simulateOptions
	cmd := &cobra.Command{
		Use:   "simulate [query]",
		Short: "Run one session to completion and print the result as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.query = args[0]
			}
			return runSimulate(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.query, "query", "q", "", "query to refine")
	f.StringSliceVar(&opts.hints, "hints", nil, "location hints")
	f.Float64Var(&opts.target, "target", 0, "target confidence in (0,1]; 0 uses the configured default")
	f.Uint64Var(&opts.seed, "seed", 0, "session seed; 0 derives it from the session id")
	f.IntVar(&opts.maxPasses, "max-passes", 0, "pass limit; 0 uses the configured default")
	f.StringVar(&opts.policyPath, "policy", "", "gatekeeper policy YAML file")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log pipeline events to stderr")
	return cmd
}

func runSimulate(cmd *cobra.Command, opts simulateOptions) error {
	logger := zap.NewNop()
	if opts.verbose {
		l, err := config.NewLogger()
		if err != nil {
			return err
		}
		logger = l
		defer func() { _ = logger.Sync() }()
	}

	svc, err := newService(opts, logger)
	if err != nil {
		return err
	}

	var target *float64
	if opts.target != 0 {
		target = &opts.target
	}
	res, err := svc.Simulate(cmd.Context(), opts.query, opts.hints, target)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), res)
}

func newService(opts simulateOptions, logger *zap.Logger) (*service.RefinementService, error) {
	policyPath := opts.policyPath
	if policyPath == "" {
		policyPath = config.GatekeeperPolicyPath()
	}
	policy, err := service.LoadGatekeeperPolicy(policyPath)
	if err != nil {
		return nil, err
	}

	cfg := service.DefaultRefinementConfig()
	cfg.MaxPasses = config.MaxPasses()
	cfg.TargetConfidence = config.TargetConfidence()
	cfg.Seed = config.Seed()
	cfg.RunTimeout = config.RunTimeout()
	cfg.Policy = policy
	if opts.maxPasses > 0 {
		cfg.MaxPasses = opts.maxPasses
	}
	if opts.seed != 0 {
		cfg.Seed = opts.seed
	}

	personas, err := persona.NewSource(config.PersonaProvider(), config.PersonaAPIKey())
	if err != nil {
		return nil, err
	}
	return service.NewRefinementService(service.Deps{
		Personas:  personas,
		Knowledge: knowledge.NewDefaultRegistry(logger),
		Audit:     store.NewInMemoryEntryLog(),
		Anchors:   layer.NewAnchorSet(config.AnchorCapacity()),
		Estimator: persona.LexicalEstimator{},
	}, cfg, logger)
}

func newPolicyCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Print the effective gatekeeper policy as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = config.GatekeeperPolicyPath()
			}
			policy, err := service.LoadGatekeeperPolicy(path)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(policy)
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "gatekeeper policy YAML file")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(cmd.OutOrStdout(), buildconfig.VersionInfo())
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
