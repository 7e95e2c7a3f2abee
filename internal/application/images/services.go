package images

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/imagesight/internal/application"
	domain "github.com/bryanwahyu/imagesight/internal/domain/images"
)

// Options tuning untuk orchestrator, default dipakai kalau zero
type Options struct {
	UploadExpiry    time.Duration // presigned PUT window
	DownloadExpiry  time.Duration // presigned GET window untuk detector
	MinConfidence   float64       // floor filter label & moderation
	MaxLabels       int           // cap jumlah label
	DetectText      bool          // text detection optional, failure = degrade
	DetectorTimeout time.Duration // request-level timeout per analyze
}

const (
	defaultUploadExpiry    = 300 * time.Second
	defaultDownloadExpiry  = 300 * time.Second
	defaultMinConfidence   = 75.0
	defaultMaxLabels       = 10
	defaultDetectorTimeout = 30 * time.Second
	defaultHistoryLimit    = 10
)

// Service implements use-cases untuk image analysis workflow.
// Service is designed to be used concurrently and is thread-safe:
// tidak ada shared mutable state, isolasi per key diserahkan ke upsert repo.
type Service struct {
	Repo     domain.Repository
	Store    domain.ObjectStore
	Detector domain.Detector
	Cache    domain.HistoryCache // optional, boleh nil
	Clock    application.Clock
	Opts     Options
}

func (o Options) withDefaults() Options {
	if o.UploadExpiry <= 0 {
		o.UploadExpiry = defaultUploadExpiry
	}
	if o.DownloadExpiry <= 0 {
		o.DownloadExpiry = defaultDownloadExpiry
	}
	if o.MinConfidence <= 0 {
		o.MinConfidence = defaultMinConfidence
	}
	if o.MaxLabels <= 0 {
		o.MaxLabels = defaultMaxLabels
	}
	if o.DetectorTimeout <= 0 {
		o.DetectorTimeout = defaultDetectorTimeout
	}
	return o
}

//
// ==== USE CASES ====
//

// IssueUploadURL buat presigned PUT URL, tidak ada side effect di bucket.
// Tidak pernah retry internal, caller yang memutuskan.
func (s *Service) IssueUploadURL(ctx context.Context, objectName, contentType string) (domain.UploadGrant, error) {
	if strings.TrimSpace(objectName) == "" {
		return domain.UploadGrant{}, fmt.Errorf("object name is required")
	}
	if strings.TrimSpace(contentType) == "" {
		return domain.UploadGrant{}, fmt.Errorf("content type is required")
	}
	opts := s.Opts.withDefaults()

	url, err := s.Store.PresignUpload(ctx, objectName, contentType, opts.UploadExpiry)
	if err != nil {
		return domain.UploadGrant{}, fmt.Errorf("%w: %v", domain.ErrIssuanceFailed, err)
	}
	return domain.UploadGrant{
		URL:              url,
		ExpiresInSeconds: int(opts.UploadExpiry / time.Second),
	}, nil
}

// Analyze jalankan detector secara concurrent -> normalize -> simpan 1 record.
// Labels + moderation wajib: salah satu gagal berarti seluruh operasi gagal
// dan tidak ada record tertulis. Text detection degrade (field di-skip).
func (s *Service) Analyze(ctx context.Context, ref domain.ObjectRef) (*domain.AnalysisRecord, error) {
	if strings.TrimSpace(ref.Key) == "" {
		return nil, fmt.Errorf("object key is required")
	}
	opts := s.Opts.withDefaults()
	start := s.Clock.Now()
	reqID := uuid.New().String()

	bucket := ref.Bucket
	if bucket == "" {
		bucket = s.Store.Bucket()
	}

	exists, err := s.Store.Exists(ctx, ref.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", domain.ErrAnalysisFailed, ref.Key, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrObjectNotFound, ref.Key)
	}

	imageURL, err := s.Store.PresignDownload(ctx, ref.Key, opts.DownloadExpiry)
	if err != nil {
		return nil, fmt.Errorf("%w: presign read: %v", domain.ErrAnalysisFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.DetectorTimeout)
	defer cancel()

	// detector calls independen & read-only, jalan paralel lalu di-join
	var (
		wg     sync.WaitGroup
		labels []domain.Label
		mods   []domain.ModerationLabel
		texts  []domain.TextDetection

		labelsErr, modsErr, textsErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		labels, labelsErr = s.Detector.DetectLabels(ctx, imageURL)
	}()
	go func() {
		defer wg.Done()
		mods, modsErr = s.Detector.DetectModeration(ctx, imageURL)
	}()
	if opts.DetectText {
		wg.Add(1)
		go func() {
			defer wg.Done()
			texts, textsErr = s.Detector.DetectText(ctx, imageURL)
		}()
	}
	wg.Wait()

	if labelsErr != nil {
		return nil, fmt.Errorf("%w: detect labels: %v", domain.ErrAnalysisFailed, labelsErr)
	}
	if modsErr != nil {
		return nil, fmt.Errorf("%w: detect moderation: %v", domain.ErrAnalysisFailed, modsErr)
	}
	if textsErr != nil {
		// text detection optional: degrade, jangan gagalkan seluruh analisa
		log.Printf("analyze req=%s key=%s: text detection degraded: %v", reqID, ref.Key, textsErr)
		texts = nil
	}

	labels = normalizeLabels(labels, opts.MinConfidence, opts.MaxLabels)
	mods = normalizeModeration(mods, opts.MinConfidence)
	texts = normalizeText(texts)

	rec := &domain.AnalysisRecord{
		ImageID:          domain.ImageID(ref.Key),
		S3Bucket:         bucket,
		S3Key:            ref.Key,
		S3URL:            s.Store.ObjectURL(ref.Key),
		Description:      describe(labels),
		Labels:           labels,
		ModerationLabels: mods,
		TextDetections:   texts,
		DurationMS:       s.Clock.Now().Sub(start).Milliseconds(),
		CreatedAt:        s.Clock.Now().UTC(),
	}

	if err := s.Repo.Save(ctx, rec); err != nil {
		// partial-failure state: hasil analisa ada di response, tapi tidak durable
		return rec, fmt.Errorf("%w: %v", domain.ErrPersistenceFailed, err)
	}

	if s.Cache != nil {
		if err := s.Cache.Invalidate(context.Background()); err != nil {
			log.Printf("analyze req=%s: history cache invalidate: %v", reqID, err)
		}
	}
	return rec, nil
}

// ListHistory ambil N record terakhir, created_at DESC
func (s *Service) ListHistory(ctx context.Context, limit int) ([]*domain.AnalysisRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	if s.Cache != nil {
		if recs, err := s.Cache.Get(ctx, limit); err != nil {
			log.Printf("history cache get: %v", err)
		} else if recs != nil {
			return recs, nil
		}
	}

	recs, err := s.Repo.Latest(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrReadFailed, err)
	}

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, limit, recs); err != nil {
			log.Printf("history cache set: %v", err)
		}
	}
	return recs, nil
}

//
// ==== NORMALIZATION ====
//

// normalizeLabels filter floor confidence, clamp [0,100], cap jumlah.
// Urutan confidence DESC supaya cap memotong yang paling lemah.
func normalizeLabels(in []domain.Label, floor float64, max int) []domain.Label {
	out := make([]domain.Label, 0, len(in))
	for _, l := range in {
		l.Confidence = clamp(l.Confidence)
		if l.Name == "" || l.Confidence < floor {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > max {
		out = out[:max]
	}
	return out
}

func normalizeModeration(in []domain.ModerationLabel, floor float64) []domain.ModerationLabel {
	out := make([]domain.ModerationLabel, 0, len(in))
	for _, m := range in {
		m.Confidence = clamp(m.Confidence)
		if m.Name == "" || m.Confidence < floor {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

func normalizeText(in []domain.TextDetection) []domain.TextDetection {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.TextDetection, 0, len(in))
	for _, t := range in {
		t.Confidence = clamp(t.Confidence)
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func clamp(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

// describe rangkum top-3 label jadi satu kalimat
func describe(labels []domain.Label) string {
	if len(labels) == 0 {
		return "No objects detected"
	}
	top := labels
	if len(top) > 3 {
		top = top[:3]
	}
	parts := make([]string, 0, len(top))
	for _, l := range top {
		parts = append(parts, fmt.Sprintf("%s (%.0f%%)", l.Name, l.Confidence))
	}
	return "Detected: " + strings.Join(parts, ", ")
}
