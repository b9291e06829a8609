package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"billing-review-service/internal/models"
)

// ErrNotFound is returned when a document or job id has no row.
var ErrNotFound = errors.New("not found")

// Store wraps pgxpool for Postgres persistence of documents and batch jobs.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// SaveDocument inserts or updates a document by id. Type, amount, status and
// metadata are writable; created_at is only ever written on insert.
func (s *Store) SaveDocument(ctx context.Context, doc models.Document) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (id, doc_type, amount, status, created_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET doc_type = EXCLUDED.doc_type,
		    amount = EXCLUDED.amount,
		    status = EXCLUDED.status,
		    metadata = EXCLUDED.metadata
	`, doc.ID, doc.Type, doc.Amount, doc.Status, doc.CreatedAt, metadataJSON)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

// GetDocument fetches a document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (models.Document, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, doc_type, amount, status, created_at, metadata
		FROM documents WHERE id = $1
	`, id)

	var doc models.Document
	var metadataJSON []byte
	if err := row.Scan(&doc.ID, &doc.Type, &doc.Amount, &doc.Status, &doc.CreatedAt, &metadataJSON); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Document{}, fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
		return models.Document{}, fmt.Errorf("scan document: %w", err)
	}
	if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
		return models.Document{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return doc, nil
}

// SearchParams collects the document search filters. Nil fields are skipped.
type SearchParams struct {
	Type      *models.DocumentType
	Status    *models.DocumentStatus
	MinAmount *float64
	MaxAmount *float64
	StartDate *time.Time
	EndDate   *time.Time
	Offset    int
	Limit     int
}

// SearchDocuments returns matching documents ordered by creation time
// descending, plus the total match count ignoring offset/limit.
func (s *Store) SearchDocuments(ctx context.Context, p SearchParams) ([]models.Document, int64, error) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if p.Type != nil {
		add("doc_type = $%d", *p.Type)
	}
	if p.Status != nil {
		add("status = $%d", *p.Status)
	}
	if p.MinAmount != nil {
		add("amount >= $%d", *p.MinAmount)
	}
	if p.MaxAmount != nil {
		add("amount <= $%d", *p.MaxAmount)
	}
	if p.StartDate != nil {
		add("created_at >= $%d", *p.StartDate)
	}
	if p.EndDate != nil {
		add("created_at <= $%d", *p.EndDate)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM documents"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT id, doc_type, amount, status, created_at, metadata FROM documents%s ORDER BY created_at DESC OFFSET $%d LIMIT $%d",
		where, len(args)+1, len(args)+2,
	)
	args = append(args, p.Offset, p.Limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		var metadataJSON []byte
		if err := rows.Scan(&doc.ID, &doc.Type, &doc.Amount, &doc.Status, &doc.CreatedAt, &metadataJSON); err != nil {
			return nil, 0, fmt.Errorf("scan document: %w", err)
		}
		if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
			return nil, 0, fmt.Errorf("unmarshal metadata: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, total, nil
}

// SaveJob inserts or updates a batch job by id. The document id list is
// written once on insert and never changed afterwards.
func (s *Store) SaveJob(ctx context.Context, job models.BatchJob) error {
	idsJSON, err := json.Marshal(job.DocumentIDs)
	if err != nil {
		return fmt.Errorf("marshal document ids: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO batch_jobs (id, document_ids, status, created_at, completed_at, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    completed_at = EXCLUDED.completed_at,
		    error_message = EXCLUDED.error_message
	`, job.ID, idsJSON, job.Status, job.CreatedAt, job.CompletedAt, job.ErrorMessage)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

// GetJob fetches a batch job by id.
func (s *Store) GetJob(ctx context.Context, id string) (models.BatchJob, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, document_ids, status, created_at, completed_at, error_message
		FROM batch_jobs WHERE id = $1
	`, id)

	var job models.BatchJob
	var idsJSON []byte
	var completedAt pgtype.Timestamptz
	var errMsg pgtype.Text

	if err := row.Scan(&job.ID, &idsJSON, &job.Status, &job.CreatedAt, &completedAt, &errMsg); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.BatchJob{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
		}
		return models.BatchJob{}, fmt.Errorf("scan job: %w", err)
	}
	if err := json.Unmarshal(idsJSON, &job.DocumentIDs); err != nil {
		return models.BatchJob{}, fmt.Errorf("unmarshal document ids: %w", err)
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	if errMsg.Valid {
		m := errMsg.String
		job.ErrorMessage = &m
	}
	return job, nil
}
