package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rpattn/accessmap/internal/domain"
	"github.com/rpattn/accessmap/internal/inference"
	"github.com/rpattn/accessmap/internal/ingestion"
	"github.com/rpattn/accessmap/internal/learning"
	"github.com/rpattn/accessmap/internal/pipeline"
	"github.com/rpattn/accessmap/internal/schema/mapper"
)

func newInferCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "infer <device-id>...",
		Short: "Infer attributes for device identifiers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return render(cmd.OutOrStdout(), a.opts.output, inference.GenerateAll(args))
		},
	}
}

func newColumnsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "columns <name>...",
		Short: "Suggest a canonical mapping for column names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return render(cmd.OutOrStdout(), a.opts.output, mapper.Suggestions(args))
		},
	}
}

type processOutput struct {
	Filename        string                `json:"filename"`
	Fingerprint     string                `json:"fingerprint"`
	Valid           bool                  `json:"valid"`
	Loaded          bool                  `json:"loaded"`
	Rows            int                   `json:"rows"`
	Mapping         domain.ColumnMapping  `json:"mapping"`
	Issues          domain.Issues         `json:"issues"`
	Source          learning.Source       `json:"source,omitempty"`
	MatchType       domain.MatchType      `json:"match_type"`
	MatchConfidence float64               `json:"match_confidence"`
	Devices         domain.DeviceMappings `json:"devices"`
	Saved           bool                  `json:"saved"`
}

func newProcessCmd(a *app) *cobra.Command {
	var (
		mappingPairs []string
		save         bool
	)

	cmd := &cobra.Command{
		Use:   "process <file>",
		Short: "Clean an export, infer its devices and apply learned corrections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manual, err := parseMappingPairs(mappingPairs)
			if err != nil {
				return err
			}

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			ctx := cmd.Context()
			store, err := a.learningStore(ctx)
			if err != nil {
				return err
			}
			staging, err := learning.NewStaging(1)
			if err != nil {
				return err
			}
			ingest := ingestion.NewService(a.backends.IngestionLogs, a.logger, ingestion.Options{
				MaxSizeBytes:      a.cfg.Upload.MaxSizeBytes(),
				AllowedExtensions: a.cfg.Upload.AllowedExtensions,
			})
			p := pipeline.New(ingest, inference.NewGenerator(a.logger), store, staging, a.logger)

			filename := filepath.Base(args[0])
			var result pipeline.UploadResult
			if manual != nil {
				result = p.UploadWithMapping(ctx, raw, filename, manual)
			} else {
				result = p.Upload(ctx, raw, filename)
			}

			out := processOutput{
				Filename:        filename,
				Fingerprint:     result.Lookup.Fingerprint,
				Valid:           result.Ingestion.Valid,
				Loaded:          result.Ingestion.Loaded,
				Rows:            len(result.Ingestion.Table.Rows),
				Mapping:         result.Ingestion.Mapping,
				Issues:          result.Ingestion.Issues,
				MatchType:       result.Lookup.Match,
				MatchConfidence: result.Lookup.Confidence,
				Devices:         domain.DeviceMappings{},
			}
			if session := result.Session; session != nil {
				out.Source = session.Source
				out.Devices = session.Devices
				if save {
					if _, err := p.Confirm(ctx, session.ID); err != nil {
						return err
					}
					out.Saved = true
				}
			}

			if err := render(cmd.OutOrStdout(), a.opts.output, out); err != nil {
				return err
			}
			if !out.Valid {
				return errors.New("upload has errors; see issues")
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&mappingPairs, "map", "m", nil, "manual column mapping as role=column (repeatable)")
	cmd.Flags().BoolVar(&save, "save", false, "store the resulting device attributes in the learning store")
	return cmd
}

func parseMappingPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	manual := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		role, column, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(role) == "" {
			return nil, fmt.Errorf("invalid mapping %q (want role=column)", pair)
		}
		if _, err := domain.ParseRole(role); err != nil {
			return nil, fmt.Errorf("invalid mapping %q: %w", pair, err)
		}
		manual[strings.TrimSpace(role)] = strings.ToLower(strings.TrimSpace(column))
	}
	return manual, nil
}

func newLearnedCmd(a *app) *cobra.Command {
	learned := &cobra.Command{
		Use:   "learned",
		Short: "Inspect the learning store",
	}

	learned.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Summarize learned mappings",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := a.learningStore(cmd.Context())
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), a.opts.output, store.Summary())
			},
		},
		&cobra.Command{
			Use:   "show <fingerprint>",
			Short: "Print one learned mapping",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := a.learningStore(cmd.Context())
				if err != nil {
					return err
				}
				record, ok := store.Get(args[0])
				if !ok {
					return fmt.Errorf("learned mapping %s: %w", args[0], domain.ErrNotFound)
				}
				return render(cmd.OutOrStdout(), a.opts.output, record)
			},
		},
		&cobra.Command{
			Use:   "delete <fingerprint>",
			Short: "Remove a learned mapping",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := a.learningStore(cmd.Context())
				if err != nil {
					return err
				}
				return store.Delete(cmd.Context(), args[0])
			},
		},
	)
	return learned
}
