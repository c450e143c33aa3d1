// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/ontograph/internal/store"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// filterOversample widens the k-NN window when metadata filters will drop
// some of the nearest rows.
const filterOversample = 8

func init() {
	sqlite_vec.Auto()
}

var _ store.VectorStore = (*VectorStore)(nil)

// VectorStore keeps cached query embeddings in a vec0 table and their cache
// payloads as JSON in a companion table.
type VectorStore struct {
	db         *sql.DB
	dimensions int
}

// NewVectorStore opens or creates the cache database at dbPath for vectors
// of the given width.
func NewVectorStore(dbPath string, dimensions int) (*VectorStore, error) {
	if dimensions <= 0 {
		return nil, store.InvalidInput("vector dimensions must be positive, got %d", dimensions)
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, store.DatabaseError(err, "opening vector db")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, store.DatabaseError(err, "pinging vector db")
	}

	schema := []string{
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS cache_vectors USING vec0(id TEXT PRIMARY KEY, embedding float[%d])`, dimensions),
		`CREATE TABLE IF NOT EXISTS cache_metadata (
	id       TEXT PRIMARY KEY,
	metadata TEXT NOT NULL DEFAULT '{}'
)`,
	}
	for _, ddl := range schema {
		if _, err := db.Exec(ddl); err != nil {
			_ = db.Close()
			return nil, store.DatabaseError(err, "migrating vector tables")
		}
	}
	return &VectorStore{db: db, dimensions: dimensions}, nil
}

// Store writes or replaces one vector and its metadata.
func (v *VectorStore) Store(ctx context.Context, id string, embedding []float32, metadata map[string]any) error {
	if len(embedding) != v.dimensions {
		return store.InvalidInput("embedding has %d dimensions, store expects %d", len(embedding), v.dimensions)
	}
	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return sigilerr.Errorf(sigilerr.CodeStoreInvalidInput, "serializing embedding: %w", err)
	}
	meta := "{}"
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return sigilerr.Errorf(sigilerr.CodeStoreInvalidInput, "encoding metadata: %w", err)
		}
		meta = string(raw)
	}

	return v.inTx(ctx, "storing vector", func(tx *sql.Tx) error {
		// vec0 has no upsert.
		if _, err := tx.ExecContext(ctx, `DELETE FROM cache_vectors WHERE id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO cache_vectors(id, embedding) VALUES (?, ?)`, id, blob); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO cache_metadata(id, metadata) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET metadata = excluded.metadata`, id, meta)
		return err
	}, sigilerr.Field("vector_id", id))
}

// Search runs a k-nearest-neighbour scan. Filters are applied to metadata
// after the scan, which is widened to compensate.
func (v *VectorStore) Search(ctx context.Context, query []float32, k int, filters map[string]any) ([]store.VectorResult, error) {
	if k <= 0 {
		return nil, nil
	}
	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreInvalidInput, "serializing query vector: %w", err)
	}
	scanK := k
	if len(filters) > 0 {
		scanK = k * filterOversample
	}

	rows, err := v.db.QueryContext(ctx, `SELECT v.id, v.distance, COALESCE(m.metadata, '{}')
FROM cache_vectors v
LEFT JOIN cache_metadata m ON m.id = v.id
WHERE v.embedding MATCH ? AND k = ?
ORDER BY v.distance`, blob, scanK)
	if err != nil {
		return nil, store.DatabaseError(err, "searching vectors")
	}
	defer func() { _ = rows.Close() }()

	var results []store.VectorResult
	for rows.Next() && len(results) < k {
		var (
			r    store.VectorResult
			meta string
		)
		if err := rows.Scan(&r.ID, &r.Score, &meta); err != nil {
			return nil, store.DatabaseError(err, "scanning vector result")
		}
		if meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
				return nil, store.DatabaseError(err, "decoding vector metadata")
			}
		}
		if matchesFilters(r.Metadata, filters) {
			results = append(results, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, store.DatabaseError(err, "iterating vector results")
	}
	return results, nil
}

// Expire matches filters and the bound inside SQLite with json_extract, so
// large caches are pruned without loading their payloads.
func (v *VectorStore) Expire(ctx context.Context, filters map[string]any, key string, bound int64) (int64, error) {
	if key == "" {
		return 0, store.InvalidInput("expire needs a metadata key")
	}
	where := []string{`CAST(json_extract(metadata, ?) AS INTEGER) < ?`}
	args := []any{jsonPath(key), bound}
	for k, want := range filters {
		where = append(where, `json_extract(metadata, ?) = ?`)
		args = append(args, jsonPath(k), want)
	}
	cond := strings.Join(where, " AND ")

	var n int64
	err := v.inTx(ctx, "expiring vectors", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM cache_vectors WHERE id IN (SELECT id FROM cache_metadata WHERE `+cond+`)`, args...); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM cache_metadata WHERE `+cond, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// Delete removes vectors and their metadata by ID.
func (v *VectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	in, args := idList(ids)
	return v.inTx(ctx, "deleting vectors", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cache_vectors WHERE id IN (`+in+`)`, args...); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM cache_metadata WHERE id IN (`+in+`)`, args...)
		return err
	})
}

func (v *VectorStore) Close() error {
	return v.db.Close()
}

func (v *VectorStore) inTx(ctx context.Context, op string, fn func(*sql.Tx) error, fields ...sigilerr.Attr) error {
	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return store.DatabaseError(err, op, fields...)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return store.DatabaseError(err, op, fields...)
	}
	if err := tx.Commit(); err != nil {
		return store.DatabaseError(err, op, fields...)
	}
	return nil
}

// jsonPath quotes key so any metadata key is a single path member.
func jsonPath(key string) string {
	return `$."` + strings.ReplaceAll(key, `"`, `\"`) + `"`
}

func idList(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

// matchesFilters compares metadata values after a JSON round trip, so an
// int filter matches the float64 that json.Unmarshal produced.
func matchesFilters(meta, filters map[string]any) bool {
	for key, want := range filters {
		got, ok := meta[key]
		if !ok {
			return false
		}
		if reflect.DeepEqual(got, want) {
			continue
		}
		wantJSON, err1 := json.Marshal(want)
		gotJSON, err2 := json.Marshal(got)
		if err1 != nil || err2 != nil || string(wantJSON) != string(gotJSON) {
			return false
		}
	}
	return true
}
