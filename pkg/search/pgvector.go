package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/mccodeai/mmgamerag/pkg/apperr"
	"github.com/mccodeai/mmgamerag/pkg/llm"
)

const embedBatchSize = 64

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PGVectorStore keeps documents and their embeddings in a PostgreSQL table
// with a pgvector column.
type PGVectorStore struct {
	db       *sql.DB
	embedder llm.Embedder
	table    string
}

func NewPGVectorStore(db *sql.DB, embedder llm.Embedder, table string) (*PGVectorStore, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	return &PGVectorStore{db: db, embedder: embedder, table: table}, nil
}

// OpenPGVectorStore connects to PostgreSQL. Connection failures wrap
// apperr.ErrStoreUnavailable.
func OpenPGVectorStore(ctx context.Context, dsn string, embedder llm.Embedder, table string) (*PGVectorStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", apperr.ErrStoreUnavailable, err)
	}
	store, err := NewPGVectorStore(db, embedder, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// EnsureSchema creates the extension and table for vectors of dims dimensions.
func (s *PGVectorStore) EnsureSchema(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("invalid embedding dimensions %d", dims)
	}
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			doc_type TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata JSONB,
			embedding vector(%d) NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT now()
		)`, s.table, dims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_doc_type_idx ON %s (doc_type)`, indexPrefix(s.table), s.table),
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure vector schema: %w", err)
		}
	}
	return nil
}

// Upsert embeds and stores docs, replacing rows with the same id.
func (s *PGVectorStore) Upsert(ctx context.Context, docs []Document) error {
	for start := 0; start < len(docs); start += embedBatchSize {
		end := min(start+embedBatchSize, len(docs))
		if err := s.upsertBatch(ctx, docs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *PGVectorStore) upsertBatch(ctx context.Context, docs []Document) error {
	inputs := make([]string, len(docs))
	for i, d := range docs {
		inputs[i] = d.Content
	}
	vectors, err := s.embedder.Embed(ctx, inputs)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, doc_type, content, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			doc_type = excluded.doc_type,
			content = excluded.content,
			metadata = excluded.metadata,
			embedding = excluded.embedding,
			updated_at = now()
	`, s.table))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, d := range docs {
		metadataBytes, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			d.ID,
			string(d.Metadata.Type),
			d.Content,
			metadataBytes,
			pgvector.NewVector(vectors[i]),
		); err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Search embeds the query and returns the k nearest documents by cosine
// distance.
func (s *PGVectorStore) Search(ctx context.Context, query string, k int, filter Filter) ([]Match, error) {
	start := time.Now()
	defer func() { searchDuration.WithLabelValues("pgvector").Observe(time.Since(start).Seconds()) }()
	searchQueriesTotal.WithLabelValues("pgvector", filterLabel(filter)).Inc()

	if k <= 0 {
		k = 4
	}
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, errors.New("embedding is required")
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT content,
			metadata,
			1 - (embedding <=> $1) AS similarity
		FROM %s
		WHERE ($2 = '' OR doc_type = $2)
		ORDER BY embedding <=> $1
		LIMIT $3
	`, s.table), pgvector.NewVector(vectors[0]), string(filter.Type), k)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var metadataBytes []byte
		if err := rows.Scan(&m.Content, &metadataBytes, &m.Score); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if len(metadataBytes) > 0 {
			if err := json.Unmarshal(metadataBytes, &m.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	searchResultsCount.Observe(float64(len(matches)))
	return matches, nil
}

func (s *PGVectorStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table)); err != nil {
		return fmt.Errorf("reset documents: %w", err)
	}
	return nil
}

func (s *PGVectorStore) Close() error {
	return s.db.Close()
}

func indexPrefix(table string) string {
	return regexp.MustCompile(`\W`).ReplaceAllString(table, "_")
}
