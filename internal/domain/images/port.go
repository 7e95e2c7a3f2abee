package images

import (
	"context"
	"time"
)

// Repository port (interface untuk persistence record)
type Repository interface {
	// Save upsert by image_id, record kedua untuk key yang sama menimpa yang lama
	Save(ctx context.Context, rec *AnalysisRecord) error
	Get(ctx context.Context, id ImageID) (*AnalysisRecord, error)
	// Latest ordered created_at DESC, baris rusak di-skip bukan di-return
	Latest(ctx context.Context, limit int) ([]*AnalysisRecord, error)
}

// ObjectStore port (interface untuk object storage)
type ObjectStore interface {
	// PresignUpload buat write-scoped URL, terikat ke key + content type
	PresignUpload(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
	// PresignDownload buat read URL untuk dikasih ke vision service
	PresignDownload(ctx context.Context, key string, expiry time.Duration) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Bucket() string
	ObjectURL(key string) string
}

// Detector port (interface untuk vision-analysis service)
type Detector interface {
	DetectLabels(ctx context.Context, imageURL string) ([]Label, error)
	DetectModeration(ctx context.Context, imageURL string) ([]ModerationLabel, error)
	DetectText(ctx context.Context, imageURL string) ([]TextDetection, error)
}

// HistoryCache port, optional layer di depan Repository.Latest
type HistoryCache interface {
	// Get returns (nil, nil) on cache miss
	Get(ctx context.Context, limit int) ([]*AnalysisRecord, error)
	Set(ctx context.Context, limit int, recs []*AnalysisRecord) error
	Invalidate(ctx context.Context) error
}
