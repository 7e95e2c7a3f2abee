package mysql

import (
	"context"
	"database/sql"
	"log"
	"time"

	domain "github.com/bryanwahyu/imagesight/internal/domain/images"
)

type RecordRepository struct {
	db *sql.DB
}

func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// Save insert/update AnalysisRecord, keyed by image_id.
// Analisa ulang untuk key yang sama menimpa record lama (last writer wins).
func (r *RecordRepository) Save(ctx context.Context, rec *domain.AnalysisRecord) error {
	const q = `
INSERT INTO image_analyses
 (image_id, s3_bucket, s3_key, s3_url, description,
  labels_json, moderation_json, text_json, duration_ms, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 s3_bucket=VALUES(s3_bucket), s3_key=VALUES(s3_key), s3_url=VALUES(s3_url),
 description=VALUES(description),
 labels_json=VALUES(labels_json), moderation_json=VALUES(moderation_json),
 text_json=VALUES(text_json),
 duration_ms=VALUES(duration_ms), created_at=VALUES(created_at);
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
WHERE image_id=? LIMIT 1;
`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Latest N record, created_at DESC. Baris dengan JSON rusak di-skip + log,
// satu record jelek tidak boleh bikin seluruh history unusable.
func (r *RecordRepository) Latest(ctx context.Context, limit int) ([]*domain.AnalysisRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
SELECT image_id, s3_bucket, s3_key, s3_url, description,
       labels_json, moderation_json, text_json, duration_ms, created_at
FROM image_analyses
ORDER BY created_at DESC, image_id DESC
LIMIT ?;
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
