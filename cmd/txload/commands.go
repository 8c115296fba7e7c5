package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dvloznov/txn-loader/internal/config"
	"github.com/dvloznov/txn-loader/internal/domain"
	"github.com/dvloznov/txn-loader/internal/logger"
	"github.com/dvloznov/txn-loader/internal/pipeline"
)

const defaultConfigPath = "config.yaml"

// newRootCommand creates the root CLI command with all subcommands registered.
func newRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "txload",
		Short: "Load transaction CSV exports into BigQuery",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to the pipeline configuration file")

	rootCmd.AddCommand(
		newRunCommand(&configPath),
		newTransformCommand(),
		newUploadCommand(&configPath),
		newVerifyCommand(&configPath),
		newLoadCommand(&configPath),
		newLedgerCommand(&configPath),
	)

	return rootCmd
}

func newRunCommand(configPath *string) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Transform, upload, verify and load one input file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(*configPath)
			if err != nil {
				return err
			}
			defer env.Close()

			cfg := env.cfg
			if input == "" {
				input = cfg.Pipeline.Input
			}

			naming, err := pipeline.ParseNamingStrategy(cfg.Pipeline.Naming)
			if err != nil {
				return err
			}
			recorder, err := env.recorder()
			if err != nil {
				return err
			}

			ctx, cancel := env.runContext()
			defer cancel()

			env.log.Info().Str("input", input).Msg("Starting pipeline")

			state, err := pipeline.Run(ctx, pipeline.Options{
				Processor:       &pipeline.Processor{Naming: naming},
				Storage:         env.storage,
				Destination:     cfg.Destination(),
				Target:          cfg.Target(),
				OpenWarehouse:   env.openWarehouse,
				MaxBadRecords:   cfg.Warehouse.MaxBadRecords,
				Retry:           cfg.RetryPolicy(),
				StrictReconcile: cfg.Pipeline.StrictReconcile,
				Events:          env.events,
				Recorder:        recorder,
			}, input, cfg.Pipeline.OutputDir)
			if err != nil {
				return err
			}

			fmt.Printf("Run %s loaded %d rows from %s into %s.%s (%d skipped, %d rejected).\n",
				state.RunID, state.Result.RowsLoaded, state.Artifact.Name,
				cfg.Warehouse.Dataset, cfg.Warehouse.Table,
				state.Artifact.Skipped, state.Result.RowsRejected)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "input CSV file (defaults to pipeline.input)")

	return cmd
}

func newTransformCommand() *cobra.Command {
	var (
		input     string
		outputDir string
		naming    string
	)

	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Write the canonical artifact for an input file without publishing it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			strategy, err := pipeline.ParseNamingStrategy(naming)
			if err != nil {
				return err
			}

			log := logger.New()
			ctx, cancel := context.WithTimeout(context.Background(), config.DefaultTimeout)
			defer cancel()
			ctx = logger.WithContext(ctx, log)

			p := &pipeline.Processor{Naming: strategy, RunID: uuid.NewString()}
			artifact, err := p.Process(ctx, input, outputDir)
			if err != nil {
				return err
			}

			fmt.Printf("Wrote %s: %d rows, %d skipped.\n", artifact.Path, artifact.Rows, artifact.Skipped)
			for _, f := range artifact.Failures {
				fmt.Printf("  line %d: %s\n", f.Line, f.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", config.DefaultInput, "input CSV file")
	cmd.Flags().StringVar(&outputDir, "output-dir", config.DefaultOutputDir, "directory for the artifact")
	cmd.Flags().StringVar(&naming, "naming", config.DefaultNaming, "artifact naming strategy: date, content or run")

	return cmd
}

func newUploadCommand(configPath *string) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload an existing artifact to the configured bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(*configPath)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx, cancel := env.runContext()
			defer cancel()

			state := pipeline.NewRunState("", file, filepath.Dir(file))
			state.Artifact = &domain.BatchArtifact{Name: filepath.Base(file), Path: file}

			p := pipeline.NewPipeline(env.events, &pipeline.UploadStep{
				Uploader:    &pipeline.Uploader{Storage: env.storage},
				Destination: env.cfg.Destination(),
				Retry:       env.cfg.RetryPolicy(),
			})
			if err := p.Execute(ctx, state); err != nil {
				return err
			}

			fmt.Printf("Uploaded %s to %s\n", file, state.Ref.URI())
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "artifact file to upload")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func newVerifyCommand(configPath *string) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that the table, stage and staged file are in place",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(*configPath)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx, cancel := env.runContext()
			defer cancel()

			state := stagedState(env, file)
			p := pipeline.NewPipeline(env.events, &pipeline.VerifyStep{
				Open:   env.openWarehouse,
				Target: env.cfg.Target(),
				Retry:  env.cfg.RetryPolicy(),
			})
			if err := p.Execute(ctx, state); err != nil {
				return err
			}

			fmt.Printf("%s is ready to load into %s.%s\n", state.Ref.URI(), env.cfg.Warehouse.Dataset, env.cfg.Warehouse.Table)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "artifact file name under the configured prefix")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func newLoadCommand(configPath *string) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Verify and bulk-load an uploaded artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(*configPath)
			if err != nil {
				return err
			}
			defer env.Close()

			recorder, err := env.recorder()
			if err != nil {
				return err
			}

			ctx, cancel := env.runContext()
			defer cancel()

			cfg := env.cfg
			state := stagedState(env, file)
			p := pipeline.NewPipeline(env.events,
				&pipeline.VerifyStep{
					Open:   env.openWarehouse,
					Target: cfg.Target(),
					Retry:  cfg.RetryPolicy(),
				},
				&pipeline.LoadStep{
					Target:          cfg.Target(),
					Storage:         env.storage,
					MaxBadRecords:   cfg.Warehouse.MaxBadRecords,
					Retry:           cfg.RetryPolicy(),
					StrictReconcile: cfg.Pipeline.StrictReconcile,
				},
			)
			if recorder != nil {
				p.WithRecorder(recorder)
			}
			if err := p.Execute(ctx, state); err != nil {
				return err
			}

			fmt.Printf("Loaded %d rows from %s into %s.%s (%d rejected, job %s).\n",
				state.Result.RowsLoaded, state.Ref.URI(), cfg.Warehouse.Dataset, cfg.Warehouse.Table,
				state.Result.RowsRejected, state.Result.JobID)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "artifact file name under the configured prefix")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func newLedgerCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Manage the run ledger table",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the run ledger table if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(*configPath)
			if err != nil {
				return err
			}
			defer env.Close()

			ledger, err := env.ledger()
			if err != nil {
				return err
			}

			ctx, cancel := env.runContext()
			defer cancel()

			if err := ledger.EnsureTable(ctx); err != nil {
				return err
			}

			fmt.Printf("Run ledger %s.%s is ready\n", env.cfg.Warehouse.Dataset, env.cfg.Warehouse.RunsTable)
			return nil
		},
	})

	return cmd
}

// stagedState prepares a run that starts from an already uploaded file.
func stagedState(env *runEnv, fileName string) *pipeline.PipelineState {
	state := pipeline.NewRunState("", fileName, env.cfg.Pipeline.OutputDir)
	ref := env.stagedRef(fileName)
	state.Ref = &ref
	state.Stage = pipeline.StageUploaded
	return state
}
