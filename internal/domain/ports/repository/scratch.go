package repository

import (
	"context"

	"incident-analyzer/internal/domain/model"
)

// ScratchStore is the per-job working directory.
type ScratchStore interface {
	// SaveUploads stores the files and returns their refs in input order.
	SaveUploads(ctx context.Context, jobID string, files []model.SourceFile) ([]string, error)
	// LoadUploads reads files back. Unreadable entries are returned in skipped.
	LoadUploads(ctx context.Context, jobID string, refs []string) (files []model.SourceFile, skipped []string, err error)
	// WriteQueryText persists the triage query atomically as UTF-8 text.
	WriteQueryText(ctx context.Context, jobID, text string) error
	ReadQueryText(ctx context.Context, jobID string) (string, error)
}
