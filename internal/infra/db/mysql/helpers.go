package mysql

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	domain "github.com/bryanwahyu/imagesight/internal/domain/images"
)

// stringOrDash returns "-" when the input is empty/whitespace
func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// marshalOrEmpty kolom *_json wajib valid JSON, nil jadi array kosong
func marshalOrEmpty(v any) (string, error) {
	if v == nil {
		return "[]", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	s := string(b)
	if s == "null" {
		s = "[]"
	}
	return s, nil
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

// scanRecord baca satu baris jadi AnalysisRecord, JSON rusak -> malformedError
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
