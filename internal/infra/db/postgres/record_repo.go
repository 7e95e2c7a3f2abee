package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	domain "github.com/bryanwahyu/imagesight/internal/domain/images"
)

// RecordRepository alternatif Postgres, kontrak sama dengan versi MySQL
type RecordRepository struct {
	db *sql.DB
}

func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// Save inserts or updates an analysis record keyed by image_id
func (r *RecordRepository) Save(ctx context.Context, rec *domain.AnalysisRecord) error {
	const q = `
INSERT INTO image_analyses
  (image_id, s3_bucket, s3_key, s3_url, description,
   labels_json, moderation_json, text_json, duration_ms, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (image_id) DO UPDATE SET
  s3_bucket=EXCLUDED.s3_bucket, s3_key=EXCLUDED.s3_key, s3_url=EXCLUDED.s3_url,
  description=EXCLUDED.description,
  labels_json=EXCLUDED.labels_json, moderation_json=EXCLUDED.moderation_json,
  text_json=EXCLUDED.text_json,
  duration_ms=EXCLUDED.duration_ms, created_at=EXCLUDED.created_at;
`
	labels, err := marshalOrEmpty(rec.Labels)
	if err != nil {
		return err
	}
	mods, err := marshalOrEmpty(rec.ModerationLabels)
	if err != nil {
		return err
	}
	texts, err := marshalOrEmpty(rec.TextDetections)
	if err != nil {
		return err
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, q,
		rec.ImageID, stringOrDash(rec.S3Bucket), stringOrDash(rec.S3Key), rec.S3URL,
		rec.Description, labels, mods, texts, rec.DurationMS, createdAt,
	)
	return err
}

// Get by image_id
func (r *RecordRepository) Get(ctx context.Context, id domain.ImageID) (*domain.AnalysisRecord, error) {
	const q = `
SELECT image_id, s3_bucket, s3_key, s3_url, description,
       labels_json, moderation_json, text_json, duration_ms, created_at
FROM image_analyses
WHERE image_id=$1 LIMIT 1;
`
	return scanRecord(r.db.QueryRowContext(ctx, q, id))
}

// Latest returns records ordered by created_at desc, malformed rows skipped
func (r *RecordRepository) Latest(ctx context.Context, limit int) ([]*domain.AnalysisRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
SELECT image_id, s3_bucket, s3_key, s3_url, description,
       labels_json, moderation_json, text_json, duration_ms, created_at
FROM image_analyses
ORDER BY created_at DESC, image_id DESC
LIMIT $1;
`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AnalysisRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			if isMalformed(err) {
				log.Printf("history: skipping malformed record: %v", err)
				continue
			}
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

//
// helpers (mirror versi mysql, placeholder style beda)
//

func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func marshalOrEmpty(v any) (string, error) {
	if v == nil {
		return "[]", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	out := string(b)
	if out == "null" {
		out = "[]"
	}
	return out, nil
}

type malformedError struct{ err error }

func (e *malformedError) Error() string { return fmt.Sprintf("malformed stored record: %v", e.err) }
func (e *malformedError) Unwrap() error { return e.err }

func isMalformed(err error) bool {
	_, ok := err.(*malformedError)
	return ok
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.AnalysisRecord, error) {
	var (
		rec                 domain.AnalysisRecord
		labels, mods, texts string
		created             time.Time
	)
	if err := row.Scan(
		&rec.ImageID, &rec.S3Bucket, &rec.S3Key, &rec.S3URL, &rec.Description,
		&labels, &mods, &texts, &rec.DurationMS, &created,
	); err != nil {
		return nil, err
	}
	rec.CreatedAt = created

	if err := json.Unmarshal([]byte(labels), &rec.Labels); err != nil {
		return nil, &malformedError{err: fmt.Errorf("labels_json for %s: %w", rec.ImageID, err)}
	}
	if err := json.Unmarshal([]byte(mods), &rec.ModerationLabels); err != nil {
		return nil, &malformedError{err: fmt.Errorf("moderation_json for %s: %w", rec.ImageID, err)}
	}
	if texts != "" && texts != "[]" {
		if err := json.Unmarshal([]byte(texts), &rec.TextDetections); err != nil {
			return nil, &malformedError{err: fmt.Errorf("text_json for %s: %w", rec.ImageID, err)}
		}
	}
	return &rec, nil
}
