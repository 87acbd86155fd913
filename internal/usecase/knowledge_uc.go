// File: internal/usecase/knowledge_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"incident-analyzer/internal/domain"
	"incident-analyzer/internal/domain/model"
	"incident-analyzer/internal/domain/ports/adapter"
)

var _ KnowledgeUseCase = (*knowledgeUC)(nil)

// KnowledgeUseCase loads postmortem write-ups into the similarity index.
type KnowledgeUseCase interface {
	// SeedDir indexes every *.md file under dir and returns how many were upserted.
	SeedDir(ctx context.Context, dir string) (int, error)
	Seed(ctx context.Context, docs []model.IncidentDocument) (int, error)
}

// SeedLocker keeps concurrent seeders of a shared index apart.
type SeedLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

const (
	seedBatchSize   = 16
	seedParallelism = 4
	maxEmbedChars   = 8000
)

type knowledgeUC struct {
	embedder adapter.Embedder
	index    adapter.SimilarityIndex
	locker   SeedLocker
	lockKey  string
	log      *zerolog.Logger
}

// NewKnowledgeUseCase builds the seeder. locker may be nil for a
// process-local index.
func NewKnowledgeUseCase(embedder adapter.Embedder, index adapter.SimilarityIndex, locker SeedLocker, lockKey string, logger *zerolog.Logger) *knowledgeUC {
	return &knowledgeUC{embedder: embedder, index: index, locker: locker, lockKey: lockKey, log: logger}
}

func (uc *knowledgeUC) SeedDir(ctx context.Context, dir string) (int, error) {
	docs, err := LoadKnowledgeDir(dir)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		uc.log.Warn().Str("dir", dir).Msg("no knowledge files found to seed")
		return 0, nil
	}
	return uc.Seed(ctx, docs)
}

// Seed embeds documents in parallel batches, then upserts them in input order
// so index insertion order is deterministic.
func (uc *knowledgeUC) Seed(ctx context.Context, docs []model.IncidentDocument) (int, error) {
	if uc.embedder == nil || uc.index == nil {
		return 0, fmt.Errorf("seed: embedder or index not configured: %w", domain.ErrProviderUnavailable)
	}
	if uc.locker != nil {
		token, err := uc.locker.TryLock(ctx, uc.lockKey, 5*time.Minute)
		if err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				uc.log.Info().Msg("another process is seeding the index; skipping")
				return 0, nil
			}
			return 0, fmt.Errorf("seed lock: %w", err)
		}
		defer func() { _ = uc.locker.Unlock(context.WithoutCancel(ctx), uc.lockKey, token) }()
	}

	vectors := make([][]float32, len(docs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(seedParallelism)
	for start := 0; start < len(docs); start += seedBatchSize {
		start := start
		end := start + seedBatchSize
		if end > len(docs) {
			end = len(docs)
		}
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, d := range docs[start:end] {
				texts = append(texts, embedText(d))
			}
			vecs, err := uc.embedder.Embed(gCtx, texts)
			if err != nil {
				return fmt.Errorf("embed documents %d-%d: %w", start, end-1, err)
			}
			if len(vecs) != len(texts) {
				return fmt.Errorf("embed documents %d-%d: got %d vectors: %w", start, end-1, len(vecs), domain.ErrInvalidResponse)
			}
			copy(vectors[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	n := 0
	for i, d := range docs {
		if err := uc.index.Upsert(ctx, d, vectors[i]); err != nil {
			return n, fmt.Errorf("upsert %s: %w", d.Path, err)
		}
		n++
	}
	uc.log.Info().Int("documents", n).Msg("knowledge index seeded")
	return n, nil
}

func embedText(d model.IncidentDocument) string {
	s := d.Title + "\n" + d.Takeaway + "\n" + d.Body
	if r := []rune(s); len(r) > maxEmbedChars {
		s = string(r[:maxEmbedChars])
	}
	return s
}

// LoadKnowledgeDir reads every markdown file under dir, sorted by path.
func LoadKnowledgeDir(dir string) ([]model.IncidentDocument, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".md") {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read knowledge dir: %w", err)
	}
	sort.Strings(paths)

	docs := make([]model.IncidentDocument, 0, len(paths))
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			rel = filepath.Base(p)
		}
		docs = append(docs, ParseKnowledgeDoc(filepath.ToSlash(rel), string(raw)))
	}
	return docs, nil
}

// ParseKnowledgeDoc reads the "Title:" and "Takeaway:" header lines of a
// postmortem. The id is derived from the path so reseeding overwrites.
func ParseKnowledgeDoc(path, raw string) model.IncidentDocument {
	raw = strings.TrimSpace(raw)
	var title, takeaway, heading string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		low := strings.ToLower(line)
		switch {
		case strings.HasPrefix(low, "title:") && title == "":
			title = strings.TrimSpace(line[len("title:"):])
		case strings.HasPrefix(low, "takeaway:") && takeaway == "":
			takeaway = strings.TrimSpace(line[len("takeaway:"):])
		case strings.HasPrefix(line, "# ") && heading == "":
			heading = strings.TrimSpace(line[2:])
		}
	}
	if title == "" {
		title = heading
	}
	if title == "" {
		title = filepath.Base(path)
	}
	return model.IncidentDocument{
		ID:       uuid.NewSHA1(uuid.NameSpaceURL, []byte("incident-doc:"+path)).String(),
		Title:    title,
		Takeaway: takeaway,
		Path:     path,
		Body:     raw,
	}
}
