//go:build !integration

package scratch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"incident-analyzer/internal/domain"
	"incident-analyzer/internal/domain/model"
)

func TestStore_SaveAndLoadUploads(t *testing.T) {
	ctx := context.Background()
	s := NewStore(t.TempDir())

	files := []model.SourceFile{
		{Name: "app.log", Content: []byte("a")},
		{Name: "../../etc/app.log", Content: []byte("b")},
		{Name: "", Content: []byte("c")},
	}
	refs, err := s.SaveUploads(ctx, "job1", files)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if diff := cmp.Diff([]string{"app.log", "app-1.log", "upload-2"}, refs); diff != "" {
		t.Fatalf("refs (-want +got):\n%s", diff)
	}

	got, skipped, err := s.LoadUploads(ctx, "job1", append(refs, "missing.log", "../x"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 3 || string(got[1].Content) != "b" {
		t.Fatalf("unexpected files %+v", got)
	}
	if diff := cmp.Diff([]string{"missing.log", "../x"}, skipped); diff != "" {
		t.Fatalf("skipped (-want +got):\n%s", diff)
	}
}

func TestStore_QueryText(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := NewStore(root)

	t.Run("should report missing query as not found", func(t *testing.T) {
		if _, err := s.ReadQueryText(ctx, "job2"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should replace the query text without leaving temp files", func(t *testing.T) {
		for _, text := range []string{"first", "second ✓"} {
			if err := s.WriteQueryText(ctx, "job2", text); err != nil {
				t.Fatalf("write: %v", err)
			}
		}
		got, err := s.ReadQueryText(ctx, "job2")
		if err != nil || got != "second ✓" {
			t.Fatalf("got %q, %v", got, err)
		}
		entries, _ := os.ReadDir(filepath.Join(root, "job2"))
		for _, e := range entries {
			if e.Name() != queryFile {
				t.Errorf("unexpected leftover %s", e.Name())
			}
		}
	})

	t.Run("should reject path-like job ids", func(t *testing.T) {
		if err := s.WriteQueryText(ctx, "../evil", "x"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"app.log":             "app.log",
		"C:\\logs\\svc.txt":   "svc.txt",
		"/var/log/../sys.log": "sys.log",
		"..":                  "upload-7",
	}
	for in, want := range cases {
		if got := SanitizeName(in, 7); got != want {
			t.Errorf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
