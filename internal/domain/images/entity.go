package images

import (
	"time"
)

// ImageID tipe untuk record, sama dengan object key di bucket
type ImageID string

// Label value object: satu objek/scene yang terdeteksi
type Label struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// ModerationLabel value object: kategori konten yang di-flag
type ModerationLabel struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Category   string  `json:"category,omitempty"`
}

// TextDetection value object: teks yang terbaca di gambar
type TextDetection struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Aggregate Root: AnalysisRecord, satu entry per gambar yang dianalisa
type AnalysisRecord struct {
	ImageID          ImageID           `json:"imageId"`
	S3Bucket         string            `json:"s3Bucket"`
	S3Key            string            `json:"s3Key"`
	S3URL            string            `json:"s3Url,omitempty"`
	Description      string            `json:"description,omitempty"`
	Labels           []Label           `json:"labels"`
	ModerationLabels []ModerationLabel `json:"moderationLabels"`
	TextDetections   []TextDetection   `json:"textDetections,omitempty"`
	DurationMS       int64             `json:"durationMs,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// UploadGrant hasil issue presigned URL, belum ada object yang dibuat
type UploadGrant struct {
	URL              string `json:"url"`
	ExpiresInSeconds int    `json:"expiresInSeconds"`
}

// ObjectRef lokasi object di store
type ObjectRef struct {
	Bucket string `json:"bucket,omitempty"`
	Key    string `json:"key"`
}
