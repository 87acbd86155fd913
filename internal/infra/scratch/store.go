package scratch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"incident-analyzer/internal/domain"
	"incident-analyzer/internal/domain/model"
	"incident-analyzer/internal/domain/ports/repository"
)

var _ repository.ScratchStore = (*Store)(nil)

const queryFile = "triage_query.txt"

// Store keeps per-job working files on local disk.
//
// Directory layout:
//
//	<root>/<job_id>/uploads/<name>
//	<root>/<job_id>/triage_query.txt
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: strings.TrimSpace(root)}
}

func (s *Store) JobDir(jobID string) string {
	return filepath.Join(s.root, jobID)
}

func (s *Store) uploadDir(jobID string) string {
	return filepath.Join(s.JobDir(jobID), "uploads")
}

func (s *Store) checkJobID(jobID string) error {
	if strings.TrimSpace(s.root) == "" {
		return fmt.Errorf("scratch root dir is empty")
	}
	if jobID == "" || jobID != filepath.Base(jobID) || jobID == "." || jobID == ".." {
		return fmt.Errorf("scratch: bad job id %q: %w", jobID, domain.ErrInvalidArgument)
	}
	return nil
}

// SaveUploads writes each file under a sanitized, unique name and returns
// those names as refs in input order.
func (s *Store) SaveUploads(ctx context.Context, jobID string, files []model.SourceFile) ([]string, error) {
	if err := s.checkJobID(jobID); err != nil {
		return nil, err
	}
	dir := s.uploadDir(jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	used := make(map[string]struct{}, len(files))
	refs := make([]string, 0, len(files))
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := uniqueName(SanitizeName(f.Name, i), used)
		if err := writeAtomic(dir, name, f.Content); err != nil {
			return nil, err
		}
		refs = append(refs, name)
	}
	return refs, nil
}

func (s *Store) LoadUploads(ctx context.Context, jobID string, refs []string) ([]model.SourceFile, []string, error) {
	if err := s.checkJobID(jobID); err != nil {
		return nil, nil, err
	}
	dir := s.uploadDir(jobID)
	var (
		files   []model.SourceFile
		skipped []string
	)
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if ref != filepath.Base(ref) {
			skipped = append(skipped, ref)
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, ref))
		if err != nil {
			skipped = append(skipped, ref)
			continue
		}
		files = append(files, model.SourceFile{Name: ref, Content: b})
	}
	return files, skipped, nil
}

func (s *Store) WriteQueryText(ctx context.Context, jobID, text string) error {
	if err := s.checkJobID(jobID); err != nil {
		return err
	}
	dir := s.JobDir(jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create job dir: %w", err)
	}
	return writeAtomic(dir, queryFile, []byte(text))
}

func (s *Store) ReadQueryText(ctx context.Context, jobID string) (string, error) {
	if err := s.checkJobID(jobID); err != nil {
		return "", err
	}
	b, err := os.ReadFile(filepath.Join(s.JobDir(jobID), queryFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return string(b), nil
}

// SanitizeName reduces an uploaded filename to a safe base name.
func SanitizeName(name string, i int) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == ':' {
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return fmt.Sprintf("upload-%d", i)
	}
	return name
}

func uniqueName(name string, used map[string]struct{}) string {
	candidate := name
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		if _, taken := used[candidate]; !taken && candidate != queryFile {
			used[candidate] = struct{}{}
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d%s", stem, n, ext)
	}
}

// writeAtomic writes through a temp file and renames it into place, so a
// reader sees either the old content or the complete new content.
func writeAtomic(dir, name string, b []byte) error {
	tmp, err := os.CreateTemp(dir, name+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}
