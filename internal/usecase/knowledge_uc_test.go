//go:build !integration

package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"incident-analyzer/internal/domain"
	"incident-analyzer/internal/domain/model"
	"incident-analyzer/internal/infra/adapters/index"
)

func TestParseKnowledgeDoc(t *testing.T) {
	t.Run("should read title and takeaway headers", func(t *testing.T) {
		d := ParseKnowledgeDoc("pm/disk.md", "Title: Disk full on ingest\nTakeaway: alert on 80% usage\n\nLong body.")
		if d.Title != "Disk full on ingest" || d.Takeaway != "alert on 80% usage" {
			t.Fatalf("unexpected %+v", d)
		}
		if d.Snippet() != "alert on 80% usage" {
			t.Fatalf("snippet = %q", d.Snippet())
		}
	})

	t.Run("should fall back to heading then file name", func(t *testing.T) {
		if d := ParseKnowledgeDoc("a.md", "# DNS outage\nbody"); d.Title != "DNS outage" {
			t.Fatalf("title = %q", d.Title)
		}
		if d := ParseKnowledgeDoc("dir/b.md", "just text"); d.Title != "b.md" {
			t.Fatalf("title = %q", d.Title)
		}
	})

	t.Run("should derive a stable id from the path", func(t *testing.T) {
		a := ParseKnowledgeDoc("x.md", "one")
		b := ParseKnowledgeDoc("x.md", "two")
		c := ParseKnowledgeDoc("y.md", "one")
		if a.ID != b.ID || a.ID == c.ID {
			t.Fatalf("ids: %s %s %s", a.ID, b.ID, c.ID)
		}
	})
}

type heldLock struct{ unlocked bool }

func (l *heldLock) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "", domain.ErrAlreadyExists
}

func (l *heldLock) Unlock(ctx context.Context, key, token string) error {
	l.unlocked = true
	return nil
}

func writeDocs(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		name := filepath.Join(dir, string(rune('a'+i%26))+string(rune('a'+i/26))+".md")
		if err := os.WriteFile(name, []byte("Title: incident "+name+"\nTakeaway: lesson\nbody"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestKnowledge_SeedDir(t *testing.T) {
	ctx := context.Background()

	t.Run("should index every markdown file in path order", func(t *testing.T) {
		dir := writeDocs(t, 40)
		idx := index.NewMemoryIndex()
		uc := NewKnowledgeUseCase(index.NewHashEmbedder(64), idx, nil, "", nopLogger())
		n, err := uc.SeedDir(ctx, dir)
		if err != nil {
			t.Fatal(err)
		}
		if n != 40 {
			t.Fatalf("seeded %d, want 40", n)
		}
		if c, _ := idx.Count(ctx); c != 40 {
			t.Fatalf("index holds %d", c)
		}

		// reseeding overwrites instead of duplicating
		if _, err := uc.SeedDir(ctx, dir); err != nil {
			t.Fatal(err)
		}
		if c, _ := idx.Count(ctx); c != 40 {
			t.Fatalf("reseed duplicated documents: %d", c)
		}
	})

	t.Run("should skip when another seeder holds the lock", func(t *testing.T) {
		lock := &heldLock{}
		idx := index.NewMemoryIndex()
		uc := NewKnowledgeUseCase(index.NewHashEmbedder(64), idx, lock, "seed", nopLogger())
		n, err := uc.SeedDir(ctx, writeDocs(t, 3))
		if err != nil || n != 0 {
			t.Fatalf("expected skip, got %d %v", n, err)
		}
		if lock.unlocked {
			t.Fatal("unlocked a lock it never held")
		}
	})

	t.Run("should report embedder failures", func(t *testing.T) {
		uc := NewKnowledgeUseCase(&fakeEmbedder{err: domain.ErrProviderUnavailable}, index.NewMemoryIndex(), nil, "", nopLogger())
		_, err := uc.Seed(ctx, []model.IncidentDocument{{ID: "1", Title: "t"}})
		if !errors.Is(err, domain.ErrProviderUnavailable) {
			t.Fatalf("expected ErrProviderUnavailable, got %v", err)
		}
	})

	t.Run("should succeed on an empty directory", func(t *testing.T) {
		uc := NewKnowledgeUseCase(index.NewHashEmbedder(64), index.NewMemoryIndex(), nil, "", nopLogger())
		n, err := uc.SeedDir(ctx, t.TempDir())
		if err != nil || n != 0 {
			t.Fatalf("got %d %v", n, err)
		}
	})
}
