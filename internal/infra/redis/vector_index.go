package redis

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/go-redis/redis/v8"

	"incident-analyzer/internal/domain"
	"incident-analyzer/internal/domain/model"
	"incident-analyzer/internal/domain/ports/adapter"
	"incident-analyzer/internal/infra/adapters/index"
)

var _ adapter.SimilarityIndex = (*VectorIndex)(nil)

// VectorIndex keeps incident documents and their normalized embeddings in
// Redis hashes and scores them client-side. Insertion order lives in a list
// so ties resolve the same way as the in-memory index.
//
// Layout:
//
//	<prefix>:ids        LIST of document ids, first-insert order
//	<prefix>:doc:<id>   HASH {doc: JSON, vec: little-endian float32}
type VectorIndex struct {
	cli    *redis.Client
	prefix string
}

func NewVectorIndex(c *Client, prefix string) *VectorIndex {
	if prefix == "" {
		prefix = "incidents"
	}
	return &VectorIndex{cli: c.cli, prefix: prefix}
}

func (v *VectorIndex) idsKey() string          { return v.prefix + ":ids" }
func (v *VectorIndex) docKey(id string) string { return v.prefix + ":doc:" + id }

func (v *VectorIndex) Upsert(ctx context.Context, doc model.IncidentDocument, vector []float32) error {
	if doc.ID == "" {
		return fmt.Errorf("index upsert: empty id: %w", domain.ErrInvalidArgument)
	}
	if len(vector) == 0 {
		return fmt.Errorf("index upsert %s: empty vector: %w", doc.ID, domain.ErrInvalidArgument)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	blob := float32ToBlob(index.Normalize(vector))

	if err := upsertScript.Run(ctx, v.cli, []string{v.docKey(doc.ID), v.idsKey()}, raw, blob, doc.ID).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis index upsert: %v: %w", err, domain.ErrProviderUnavailable)
	}
	return nil
}

// upsertScript writes the document and registers its id in one step. The id
// list is checked directly, so a hash left without a list entry is repaired.
var upsertScript = redis.NewScript(`
redis.call("HSET", KEYS[1], "doc", ARGV[1], "vec", ARGV[2])
if not redis.call("LPOS", KEYS[2], ARGV[3]) then
	redis.call("RPUSH", KEYS[2], ARGV[3])
	return 1
end
return 0`)

func (v *VectorIndex) Query(ctx context.Context, vector []float32, k int) ([]adapter.IndexMatch, error) {
	if k <= 0 || len(vector) == 0 {
		return []adapter.IndexMatch{}, nil
	}
	q := index.Normalize(vector)

	ids, err := v.cli.LRange(ctx, v.idsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis index query: %v: %w", err, domain.ErrProviderUnavailable)
	}
	if len(ids) == 0 {
		return []adapter.IndexMatch{}, nil
	}

	cmds := make([]*redis.SliceCmd, len(ids))
	_, err = v.cli.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HMGet(ctx, v.docKey(id), "doc", "vec")
		}
		return nil
	})
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis index query: %v: %w", err, domain.ErrProviderUnavailable)
	}

	matches := make([]adapter.IndexMatch, 0, len(ids))
	for _, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) != 2 {
			continue
		}
		rawDoc, ok1 := vals[0].(string)
		rawVec, ok2 := vals[1].(string)
		if !ok1 || !ok2 {
			continue
		}
		vec := blobToFloat32([]byte(rawVec))
		if len(vec) != len(q) {
			continue
		}
		var doc model.IncidentDocument
		if err := json.Unmarshal([]byte(rawDoc), &doc); err != nil {
			continue
		}
		matches = append(matches, adapter.IndexMatch{Document: doc, Score: index.Dot(q, vec)})
	}

	// ids are in insertion order, so a stable sort keeps ties in that order
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (v *VectorIndex) Count(ctx context.Context) (int, error) {
	n, err := v.cli.LLen(ctx, v.idsKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis index count: %v: %w", err, domain.ErrProviderUnavailable)
	}
	return int(n), nil
}

func float32ToBlob(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func blobToFloat32(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
