package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v2"

	"github.com/marmotpm/marmot/pkg/conda"
	"github.com/marmotpm/marmot/pkg/lib/signals"
	"github.com/marmotpm/marmot/pkg/metrics"
	"github.com/marmotpm/marmot/pkg/resolver"
)

const (
	exitConflict = 2
)

type solveOptions struct {
	envFile     string
	repodata    []string
	stateFile   string
	backend     string
	cutoff      string
	noVirtual   bool
	metricsAddr string
}

// environment is the request file: what the user asked for, in which
// channels, with which pins.
type environment struct {
	Name     string   `yaml:"name"`
	Channels []string `yaml:"channels"`
	Specs    []string `yaml:"specs"`
	Pinned   []string `yaml:"pinned"`
}

func newSolveCmd() *cobra.Command {
	o := solveOptions{}

	cmd := &cobra.Command{
		Use:          "solve",
		Short:        "Resolves an environment request against channel repodata",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logrus.New()
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				logger.SetLevel(logrus.DebugLevel)
			}
			return o.run(logger)
		},
	}

	cmd.Flags().StringVarP(&o.envFile, "file", "f", "environment.yaml", "environment request file")
	cmd.Flags().StringArrayVar(&o.repodata, "repodata", nil, "repodata source as channel=path, repeatable")
	cmd.Flags().StringVar(&o.stateFile, "state", "", "JSON file holding the currently installed records")
	cmd.Flags().StringVar(&o.backend, "backend", "sat", "resolution backend: sat or native")
	cmd.Flags().StringVar(&o.cutoff, "cutoff", "", "ignore records published after this RFC 3339 timestamp")
	cmd.Flags().BoolVar(&o.noVirtual, "no-virtual", false, "do not detect system virtual packages")
	cmd.Flags().StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func (o *solveOptions) run(logger *logrus.Logger) error {
	env, err := loadEnvironment(o.envFile)
	if err != nil {
		return err
	}

	pool, err := o.loadPool()
	if err != nil {
		return err
	}

	specs, err := parseSpecs(env.Specs)
	if err != nil {
		return err
	}
	pins, err := parseSpecs(env.Pinned)
	if err != nil {
		return err
	}

	var installed []*conda.PackageRecord
	if o.stateFile != "" {
		installed, err = loadState(o.stateFile)
		if err != nil {
			return err
		}
	}

	opts := []resolver.TaskOption{
		resolver.WithChannelPriority(env.Channels...),
		resolver.WithPinned(pins...),
		resolver.WithInstalled(installed...),
	}
	if !o.noVirtual {
		opts = append(opts, resolver.WithVirtualPackages(conda.DetectVirtualPackages()...))
	}
	if o.cutoff != "" {
		cutoff, err := time.Parse(time.RFC3339, o.cutoff)
		if err != nil {
			return errors.Wrap(err, "invalid cutoff")
		}
		opts = append(opts, resolver.WithCutoff(cutoff))
	}

	task, err := resolver.NewTask(pool, specs, opts...)
	if err != nil {
		return err
	}

	backend, err := o.selectBackend()
	if err != nil {
		return err
	}

	if o.metricsAddr != "" {
		metrics.Register()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(o.metricsAddr, mux); err != nil {
				logger.WithError(err).Warn("metrics server stopped")
			}
		}()
	}

	engine := resolver.NewInstrumentedEngine(
		resolver.NewEngine(
			resolver.WithBackend(backend),
			resolver.WithLogger(logger),
		),
		metrics.RegisterResolutionSuccess(backend.Name()),
		metrics.RegisterResolutionFailure(backend.Name()),
	)

	result, err := engine.Resolve(signals.Context(), task)
	if err != nil {
		if resolver.IsConflict(err) {
			metrics.EmitConflict()
			fmt.Fprintln(os.Stderr, "The request cannot be satisfied:")
			for _, step := range err.(*resolver.Conflict).Steps {
				fmt.Fprintf(os.Stderr, "  - %s\n", step)
			}
			os.Exit(exitConflict)
		}
		return err
	}

	tx, err := resolver.BuildTransaction(installed, result.Records, env.Channels)
	if err != nil {
		return err
	}
	if len(tx.Operations) == 0 {
		fmt.Println("Nothing to do: the environment already satisfies the request.")
		return nil
	}
	for _, op := range tx.Operations {
		metrics.EmitTransactionOperation(op.Kind.String())
		fmt.Println(op)
	}
	return nil
}

func (o *solveOptions) loadPool() ([]*conda.PackageRecord, error) {
	var pool []*conda.PackageRecord
	for _, source := range o.repodata {
		parts := strings.SplitN(source, "=", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("repodata source %q is not of the form channel=path", source)
		}
		channel, path := parts[0], parts[1]
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "opening repodata for channel %s", channel)
		}
		records, err := conda.LoadRepoData(f, channel)
		f.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "loading repodata for channel %s", channel)
		}
		pool = append(pool, records...)
	}
	return pool, nil
}

func (o *solveOptions) selectBackend() (resolver.Backend, error) {
	switch o.backend {
	case "sat":
		return &resolver.SATBackend{}, nil
	case "native":
		return &resolver.NativeBackend{}, nil
	}
	return nil, errors.Errorf("unknown backend %q", o.backend)
}

func loadEnvironment(path string) (*environment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading environment file")
	}
	env := &environment{}
	if err := yaml.Unmarshal(data, env); err != nil {
		return nil, errors.Wrap(err, "parsing environment file")
	}
	if len(env.Specs) == 0 {
		return nil, errors.New("environment file requests no packages")
	}
	return env, nil
}

func loadState(path string) ([]*conda.PackageRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading state file")
	}
	var records []*conda.PackageRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrap(err, "parsing state file")
	}
	return records, nil
}

func parseSpecs(texts []string) ([]*conda.MatchSpec, error) {
	specs := make([]*conda.MatchSpec, 0, len(texts))
	for _, text := range texts {
		spec, err := conda.ParseMatchSpec(text)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
