package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/zeebo/xxh3"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/dvloznov/txn-loader/internal/domain"
	"github.com/dvloznov/txn-loader/internal/logger"
)

// Processor turns one raw export file into one canonical artifact.
type Processor struct {
	Now    func() time.Time // defaults to time.Now
	Naming NamingStrategy   // defaults to NamingContent
	RunID  string           // used by NamingRun
}

// Process reads inputPath, transforms every record and writes the canonical
// artifact into outputDir. Rows that fail to transform are skipped and
// recorded on the artifact; only I/O failures abort the batch.
func (p *Processor) Process(ctx context.Context, inputPath, outputDir string) (*domain.BatchArtifact, error) {
	log := logger.FromContext(ctx)

	in, err := os.Open(inputPath)
	if err != nil {
		return nil, &IOError{Op: "open", Path: inputPath, Err: err}
	}
	defer in.Close()

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, &IOError{Op: "create directory", Path: outputDir, Err: err}
	}

	tmp, err := os.CreateTemp(outputDir, tempPattern)
	if err != nil {
		return nil, &IOError{Op: "create", Path: outputDir, Err: err}
	}
	tmpPath := tmp.Name()
	renamed := false
	defer func() {
		if !renamed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	hasher := xxh3.New()
	out := csv.NewWriter(io.MultiWriter(tmp, hasher))

	artifact := &domain.BatchArtifact{}
	if err := p.copyRecords(ctx, inputPath, in, out, artifact); err != nil {
		return nil, err
	}

	out.Flush()
	if err := out.Error(); err != nil {
		return nil, &IOError{Op: "write", Path: tmpPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return nil, &IOError{Op: "close", Path: tmpPath, Err: err}
	}

	now := p.now()
	artifact.CreatedAt = now
	artifact.Checksum = fmt.Sprintf("%016x", hasher.Sum64())
	artifact.Name = ArtifactName(p.naming(), civil.DateOf(now), artifact.Checksum, p.RunID)
	artifact.Path = filepath.Join(outputDir, artifact.Name)

	if err := os.Rename(tmpPath, artifact.Path); err != nil {
		return nil, &IOError{Op: "rename", Path: artifact.Path, Err: err}
	}
	renamed = true

	log.Info().
		Str("input", inputPath).
		Str("artifact", artifact.Path).
		Int("rows", artifact.Rows).
		Int("skipped", artifact.Skipped).
		Msg("Batch processed")

	return artifact, nil
}

// copyRecords streams records from in to out, updating the artifact counts.
func (p *Processor) copyRecords(ctx context.Context, inputPath string, in io.Reader, out *csv.Writer, artifact *domain.BatchArtifact) error {
	log := logger.FromContext(ctx)

	r := csv.NewReader(transform.NewReader(in, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("input has no header line")
		}
		return &IOError{Op: "read header", Path: inputPath, Err: err}
	}
	columns := normalizeHeader(header)

	if err := out.Write(domain.CanonicalColumns); err != nil {
		return &IOError{Op: "write", Path: inputPath, Err: err}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}

		var rowErr *RowError
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return &IOError{Op: "read", Path: inputPath, Err: err}
			}
			rowErr = &RowError{Line: perr.StartLine, Reason: "malformed csv: " + perr.Err.Error()}
		} else {
			line, _ := r.FieldPos(0)
			rec, terr := TransformRecord(toRawRecord(columns, record))
			if terr == nil {
				if err := out.Write(rec.Row()); err != nil {
					return &IOError{Op: "write", Path: inputPath, Err: err}
				}
				artifact.Rows++
				continue
			}
			if !errors.As(terr, &rowErr) {
				return terr
			}
			rowErr.Line = line
		}

		log.Warn().
			Int("line", rowErr.Line).
			Str("field", rowErr.Field).
			Msg("Skipping record: " + rowErr.Reason)
		artifact.Skipped++
		artifact.Failures = append(artifact.Failures, domain.RowFailure{Line: rowErr.Line, Reason: rowErr.Error()})
	}
}

func normalizeHeader(header []string) []string {
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = norm.NFC.String(strings.TrimSpace(h))
	}
	return cols
}

// toRawRecord pairs cells with column names. Cells past the header are
// dropped and columns past a short row are absent.
func toRawRecord(columns, cells []string) domain.RawRecord {
	raw := make(domain.RawRecord, len(columns))
	for i, col := range columns {
		if i >= len(cells) {
			break
		}
		raw[col] = cells[i]
	}
	return raw
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Processor) naming() NamingStrategy {
	if p.Naming == "" {
		return NamingContent
	}
	return p.Naming
}
