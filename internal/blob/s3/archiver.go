package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/avask/arbot/internal/domain"
)

// Archiver periodically snapshots recent trade executions to JSONL objects
// under executions/YYYY/MM/DD/. Archived rows are not deleted from the
// primary store; pruning is a separate operational step.
type Archiver struct {
	writer   domain.BlobWriter
	execs    domain.ExecutionStore
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

// NewArchiver creates an Archiver that uploads every interval.
func NewArchiver(writer domain.BlobWriter, execs domain.ExecutionStore, interval time.Duration, logger *slog.Logger) *Archiver {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Archiver{
		writer:   writer,
		execs:    execs,
		interval: interval,
		batch:    500,
		logger:   logger.With(slog.String("component", "archiver")),
	}
}

// Run archives on a ticker until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.ArchiveOnce(ctx); err != nil {
				a.logger.Warn("archive pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ArchiveOnce uploads the most recent executions as one JSONL object.
func (a *Archiver) ArchiveOnce(ctx context.Context) error {
	execs, err := a.execs.Recent(ctx, a.batch)
	if err != nil {
		return fmt.Errorf("archiver: list executions: %w", err)
	}
	if len(execs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, exec := range execs {
		if err := enc.Encode(exec); err != nil {
			return fmt.Errorf("archiver: encode execution %s: %w", exec.ID, err)
		}
	}

	now := time.Now().UTC()
	key := fmt.Sprintf("executions/%04d/%02d/%02d/%d.jsonl",
		now.Year(), now.Month(), now.Day(), now.Unix())

	if err := a.writer.Put(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return fmt.Errorf("archiver: upload %s: %w", key, err)
	}

	a.logger.Info("executions archived",
		slog.String("key", key),
		slog.Int("count", len(execs)),
	)
	return nil
}
