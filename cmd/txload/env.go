package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/dvloznov/txn-loader/internal/config"
	"github.com/dvloznov/txn-loader/internal/domain"
	"github.com/dvloznov/txn-loader/internal/gcsuploader"
	infraBQ "github.com/dvloznov/txn-loader/internal/infra/bigquery"
	"github.com/dvloznov/txn-loader/internal/logger"
	"github.com/dvloznov/txn-loader/internal/pipeline"
	"github.com/dvloznov/txn-loader/internal/runlog"
)

// runEnv is what every configured command needs: the loaded configuration,
// the console logger, the run log sinks and the storage client.
type runEnv struct {
	cfg     *config.Config
	log     zerolog.Logger
	events  runlog.Sink
	storage *gcsuploader.GCSStorageService
	runLog  io.Closer
}

func openEnv(configPath string) (*runEnv, error) {
	log := logger.New()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	fileLog, closer, err := logger.NewRunLog(cfg.Pipeline.RunLog)
	if err != nil {
		return nil, err
	}

	log.Info().Str("config", cfg.String()).Msg("Configuration loaded")
	fileLog.Info().Str("config", cfg.String()).Msg("Configuration loaded")

	return &runEnv{
		cfg:     cfg,
		log:     log,
		events:  runlog.Multi{runlog.NewLogSink(fileLog), runlog.NewLogSink(log)},
		storage: gcsuploader.NewGCSStorageService(cfg.Storage.CredentialsFile, cfg.Storage.Project),
		runLog:  closer,
	}, nil
}

func (e *runEnv) Close() error {
	return e.runLog.Close()
}

// runContext returns a context bounded by the configured timeout with the
// console logger attached.
func (e *runEnv) runContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Pipeline.Timeout)
	return logger.WithContext(ctx, e.log), cancel
}

func (e *runEnv) warehouseOptions() []option.ClientOption {
	if f := e.cfg.Warehouse.CredentialsFile; f != "" {
		return []option.ClientOption{option.WithCredentialsFile(f)}
	}
	return nil
}

func (e *runEnv) openWarehouse(ctx context.Context) (pipeline.Warehouse, error) {
	return infraBQ.NewBigQueryWarehouse(ctx, e.cfg.Warehouse.Project, e.cfg.Warehouse.Location, e.storage, e.warehouseOptions()...)
}

// recorder returns the run ledger, or nil when no runs table is configured.
func (e *runEnv) recorder() (pipeline.RunRecorder, error) {
	if e.cfg.Warehouse.RunsTable == "" {
		return nil, nil
	}
	return e.ledger()
}

func (e *runEnv) ledger() (*infraBQ.RunLedger, error) {
	w := e.cfg.Warehouse
	if w.RunsTable == "" {
		return nil, errors.New("warehouse.runs_table is not configured")
	}
	ledger, err := infraBQ.NewRunLedger(w.Project, w.Dataset, w.RunsTable, e.warehouseOptions()...)
	if err != nil {
		return nil, fmt.Errorf("run ledger: %w", err)
	}
	return ledger, nil
}

// stagedRef returns where a previously uploaded artifact named fileName lives.
func (e *runEnv) stagedRef(fileName string) domain.StageReference {
	dest := e.cfg.Destination()
	return domain.StageReference{Bucket: dest.Bucket, Key: dest.ObjectKey(fileName)}
}
