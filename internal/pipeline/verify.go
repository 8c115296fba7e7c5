package pipeline

import (
	"context"

	"github.com/dvloznov/txn-loader/internal/domain"
	"github.com/dvloznov/txn-loader/internal/logger"
	"github.com/dvloznov/txn-loader/internal/retry"
)

// Verifier confirms the destination table, the stage and the staged file
// exist before a load is attempted.
type Verifier struct {
	Catalog Catalog
}

// Verify runs the table, stage and file checks in that order and stops at
// the first failure.
func (v *Verifier) Verify(ctx context.Context, target domain.LoadTarget, ref domain.StageReference) error {
	log := logger.FromContext(ctx).With().
		Str("table", target.Table).
		Str("stage", target.Stage).
		Logger()

	ok, err := v.Catalog.TableExists(ctx, target)
	if err != nil || !ok {
		return verificationError(CheckTable, target, ref, err)
	}

	uris, err := v.Catalog.StageLocation(ctx, target)
	if err != nil || len(uris) == 0 {
		return verificationError(CheckStage, target, ref, err)
	}

	files, err := v.Catalog.ListStageFiles(ctx, uris)
	if err != nil {
		return verificationError(CheckFile, target, ref, err)
	}
	log.Debug().Strs("files", files).Msg("Stage listing")

	name := ref.FileName()
	for _, f := range files {
		if f == name {
			log.Info().Str("file", name).Msg("Verification passed")
			return nil
		}
	}
	return verificationError(CheckFile, target, ref, nil)
}

func verificationError(check string, target domain.LoadTarget, ref domain.StageReference, err error) *VerificationError {
	return &VerificationError{
		Check:     check,
		Project:   target.Project,
		Dataset:   target.Dataset,
		Table:     target.Table,
		Stage:     target.Stage,
		File:      ref.FileName(),
		Err:       err,
		retryable: err != nil && retry.IsTransient(err),
	}
}
