package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rpattn/accessmap/internal/bootstrap"
	"github.com/rpattn/accessmap/internal/config"
	"github.com/rpattn/accessmap/internal/learning"
	"github.com/rpattn/accessmap/internal/logging"
)

type cliOptions struct {
	configDir string
	output    string
	logLevel  string
}

// app holds lazily created services shared by subcommands.
type app struct {
	opts     *cliOptions
	cfg      config.Config
	logger   *zap.Logger
	backends *bootstrap.Backends
	store    *learning.Store
}

func (a *app) init() error {
	if a.logger != nil {
		return nil
	}
	cfg, _, err := config.Load(a.opts.configDir)
	if err != nil {
		return err
	}
	logger, err := logging.New(a.opts.logLevel, "console")
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) learningStore(ctx context.Context) (*learning.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	if err := a.init(); err != nil {
		return nil, err
	}
	backends, err := bootstrap.Open(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.backends = backends
	a.store = learning.NewStore(ctx, backends.Mappings, a.logger)
	return a.store, nil
}

func (a *app) close() {
	if a.backends != nil {
		a.backends.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	a := &app{opts: opts}

	root := &cobra.Command{
		Use:           "accessmap",
		Short:         "Map access-control exports and infer door attributes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.output {
			case "json", "yaml":
				return nil
			default:
				return fmt.Errorf("unsupported output %q (want json or yaml)", opts.output)
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	root.PersistentFlags().StringVar(&opts.configDir, "config", ".", "directory containing config.yaml")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "json", "output format: json or yaml")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "error", "log level written to stderr")

	root.AddCommand(
		newInferCmd(a),
		newColumnsCmd(a),
		newProcessCmd(a),
		newLearnedCmd(a),
	)
	return root
}

// render writes value as indented JSON or as YAML converted from that JSON,
// so both formats share field names and order.
func render(w io.Writer, format string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	if strings.EqualFold(format, "yaml") {
		data, err = yaml.JSONToYAML(data)
		if err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		_, err = w.Write(data)
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
