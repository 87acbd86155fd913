//go:build !integration

package index

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"incident-analyzer/internal/domain/model"
)

func doc(id string) model.IncidentDocument {
	return model.IncidentDocument{ID: id, Title: "title " + id}
}

func ids(t *testing.T, ms []matchLike) []string {
	t.Helper()
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.id
	}
	return out
}

type matchLike struct {
	id    string
	score float64
}

func query(t *testing.T, idx *MemoryIndex, v []float32, k int) []matchLike {
	t.Helper()
	got, err := idx.Query(context.Background(), v, k)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	out := make([]matchLike, len(got))
	for i, m := range got {
		out[i] = matchLike{id: m.Document.ID, score: m.Score}
	}
	return out
}

func TestMemoryIndex_UpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(idx.Upsert(ctx, doc("similar"), []float32{1, 0, 0}))
	must(idx.Upsert(ctx, doc("dissimilar"), []float32{0, 1, 0}))
	must(idx.Upsert(ctx, doc("other-dim"), []float32{1, 0}))

	got := query(t, idx, []float32{0.9, 0.1, 0}, 10)
	if diff := cmp.Diff([]string{"similar", "dissimilar"}, ids(t, got)); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if got[0].score < 0.99 || got[0].score > 1.0001 {
		t.Errorf("expected near-1 score, got %v", got[0].score)
	}
}

func TestMemoryIndex_TopKAndTies(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	for _, id := range []string{"a", "b", "c", "d"} {
		if err := idx.Upsert(ctx, doc(id), []float32{1, 1}); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("should break ties by insertion order", func(t *testing.T) {
		got := query(t, idx, []float32{1, 1}, 3)
		if diff := cmp.Diff([]string{"a", "b", "c"}, ids(t, got)); diff != "" {
			t.Fatalf("(-want +got):\n%s", diff)
		}
	})

	t.Run("should return nothing for k <= 0", func(t *testing.T) {
		if got := query(t, idx, []float32{1, 1}, 0); len(got) != 0 {
			t.Fatalf("expected empty, got %v", got)
		}
	})

	t.Run("should keep position on re-upsert", func(t *testing.T) {
		if err := idx.Upsert(ctx, doc("a"), []float32{2, 2}); err != nil {
			t.Fatal(err)
		}
		n, _ := idx.Count(ctx)
		if n != 4 {
			t.Fatalf("expected 4 entries, got %d", n)
		}
		got := query(t, idx, []float32{1, 1}, 1)
		if got[0].id != "a" {
			t.Fatalf("expected a first, got %s", got[0].id)
		}
	})
}

func TestMemoryIndex_RejectsEmpty(t *testing.T) {
	idx := NewMemoryIndex()
	if err := idx.Upsert(context.Background(), doc(""), []float32{1}); err == nil {
		t.Error("expected error for empty id")
	}
	if err := idx.Upsert(context.Background(), doc("x"), nil); err == nil {
		t.Error("expected error for empty vector")
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Fatalf("unexpected %v", v)
	}
	z := Normalize([]float32{0, 0})
	if z[0] != 0 || z[1] != 0 {
		t.Fatalf("zero vector should stay zero, got %v", z)
	}
}

func TestHashEmbedder_SimilarTextsScoreHigher(t *testing.T) {
	e := NewHashEmbedder(128)
	vs, _ := e.Embed(context.Background(), []string{
		"disk full no space left on device",
		"no space left on device during compaction",
		"tls certificate expired handshake",
	})
	a, b, c := Normalize(vs[0]), Normalize(vs[1]), Normalize(vs[2])
	if Dot(a, b) <= Dot(a, c) {
		t.Fatalf("expected overlap to score higher: ab=%v ac=%v", Dot(a, b), Dot(a, c))
	}
}
