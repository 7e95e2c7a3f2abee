package images

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/imagesight/internal/domain/images"
)

//
// ==== fakes ====
//

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(5 * time.Millisecond)
	return c.now
}

type memRepo struct {
	mu      sync.Mutex
	records map[domain.ImageID]*domain.AnalysisRecord
	saveErr error
}

func newMemRepo() *memRepo {
	return &memRepo{records: make(map[domain.ImageID]*domain.AnalysisRecord)}
}

func (r *memRepo) Save(ctx context.Context, rec *domain.AnalysisRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	cp := *rec
	r.records[rec.ImageID] = &cp
	return nil
}

func (r *memRepo) Get(ctx context.Context, id domain.ImageID) (*domain.AnalysisRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return rec, nil
}

func (r *memRepo) Latest(ctx context.Context, limit int) ([]*domain.AnalysisRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.AnalysisRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	// created_at DESC
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.After(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type fakeStore struct {
	bucket     string
	presignErr error
	missing    bool
	statErr    error
}

func (s *fakeStore) PresignUpload(ctx context.Context, key, contentType string, expiry time.Duration) (string, error) {
	if s.presignErr != nil {
		return "", s.presignErr
	}
	return fmt.Sprintf("https://store.local/%s/%s?sig=abc&ct=%s", s.bucket, key, contentType), nil
}

func (s *fakeStore) PresignDownload(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("https://store.local/%s/%s?read=1", s.bucket, key), nil
}

func (s *fakeStore) Exists(ctx context.Context, key string) (bool, error) {
	if s.statErr != nil {
		return false, s.statErr
	}
	return !s.missing, nil
}

func (s *fakeStore) Bucket() string              { return s.bucket }
func (s *fakeStore) ObjectURL(key string) string { return "https://store.local/" + s.bucket + "/" + key }

type fakeDetector struct {
	mu        sync.Mutex
	labels    []domain.Label
	mods      []domain.ModerationLabel
	texts     []domain.TextDetection
	labelsErr error
	modsErr   error
	textsErr  error
	calls     []string
}

func (d *fakeDetector) record(name string) {
	d.mu.Lock()
	d.calls = append(d.calls, name)
	d.mu.Unlock()
}

func (d *fakeDetector) DetectLabels(ctx context.Context, imageURL string) ([]domain.Label, error) {
	d.record("labels")
	return d.labels, d.labelsErr
}

func (d *fakeDetector) DetectModeration(ctx context.Context, imageURL string) ([]domain.ModerationLabel, error) {
	d.record("moderation")
	return d.mods, d.modsErr
}

func (d *fakeDetector) DetectText(ctx context.Context, imageURL string) ([]domain.TextDetection, error) {
	d.record("text")
	return d.texts, d.textsErr
}

type fakeCache struct {
	mu          sync.Mutex
	entries     map[int][]*domain.AnalysisRecord
	invalidated int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[int][]*domain.AnalysisRecord)}
}

func (c *fakeCache) Get(ctx context.Context, limit int) ([]*domain.AnalysisRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[limit], nil
}

func (c *fakeCache) Set(ctx context.Context, limit int, recs []*domain.AnalysisRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[limit] = recs
	return nil
}

func (c *fakeCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[int][]*domain.AnalysisRecord)
	c.invalidated++
	return nil
}

func newService(repo *memRepo, store *fakeStore, det *fakeDetector) *Service {
	return &Service{
		Repo:     repo,
		Store:    store,
		Detector: det,
		Clock:    &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
}

//
// ==== IssueUploadURL ====
//

func TestIssueUploadURL(t *testing.T) {
	svc := newService(newMemRepo(), &fakeStore{bucket: "images"}, &fakeDetector{})

	grant, err := svc.IssueUploadURL(context.Background(), "uploads/1_cat.jpg", "image/jpeg")
	require.NoError(t, err)
	assert.Contains(t, grant.URL, "uploads/1_cat.jpg")
	assert.Equal(t, 300, grant.ExpiresInSeconds)
}

func TestIssueUploadURL_EmptyName(t *testing.T) {
	svc := newService(newMemRepo(), &fakeStore{bucket: "images"}, &fakeDetector{})

	_, err := svc.IssueUploadURL(context.Background(), "  ", "image/jpeg")
	require.Error(t, err)
}

func TestIssueUploadURL_StoreDown(t *testing.T) {
	store := &fakeStore{bucket: "images", presignErr: errors.New("connection refused")}
	svc := newService(newMemRepo(), store, &fakeDetector{})

	_, err := svc.IssueUploadURL(context.Background(), "uploads/1_cat.jpg", "image/jpeg")
	require.ErrorIs(t, err, domain.ErrIssuanceFailed)
}

//
// ==== Analyze ====
//

func catDetector() *fakeDetector {
	return &fakeDetector{
		labels: []domain.Label{
			{Name: "Cat", Confidence: 98.2},
			{Name: "Animal", Confidence: 97.1},
			{Name: "Pet", Confidence: 95.0},
			{Name: "Whiskers", Confidence: 40.0}, // below floor
		},
		mods: []domain.ModerationLabel{},
	}
}

func TestAnalyze_Success(t *testing.T) {
	repo := newMemRepo()
	svc := newService(repo, &fakeStore{bucket: "images"}, catDetector())

	rec, err := svc.Analyze(context.Background(), domain.ObjectRef{Key: "uploads/1_cat.jpg"})
	require.NoError(t, err)

	assert.Equal(t, domain.ImageID("uploads/1_cat.jpg"), rec.ImageID)
	assert.Equal(t, "images", rec.S3Bucket)
	assert.Equal(t, "uploads/1_cat.jpg", rec.S3Key)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Equal(t, "Detected: Cat (98%), Animal (97%), Pet (95%)", rec.Description)

	// floor filter: label 40% dibuang
	require.Len(t, rec.Labels, 3)
	for _, l := range rec.Labels {
		assert.GreaterOrEqual(t, l.Confidence, 0.0)
		assert.LessOrEqual(t, l.Confidence, 100.0)
	}
	assert.Empty(t, rec.ModerationLabels)
	assert.Empty(t, rec.TextDetections)

	// record tersimpan
	stored, err := repo.Get(context.Background(), rec.ImageID)
	require.NoError(t, err)
	assert.Equal(t, rec.ImageID, stored.ImageID)
}

func TestAnalyze_RunsDetectorsConcurrently(t *testing.T) {
	det := catDetector()
	svc := newService(newMemRepo(), &fakeStore{bucket: "images"}, det)
	svc.Opts.DetectText = true

	_, err := svc.Analyze(context.Background(), domain.ObjectRef{Key: "k.jpg"})
	require.NoError(t, err)

	det.mu.Lock()
	defer det.mu.Unlock()
	assert.ElementsMatch(t, []string{"labels", "moderation", "text"}, det.calls)
}

func TestAnalyze_LabelCap(t *testing.T) {
	det := &fakeDetector{mods: []domain.ModerationLabel{}}
	for i := 0; i < 15; i++ {
		det.labels = append(det.labels, domain.Label{
			Name:       fmt.Sprintf("Label%d", i),
			Confidence: 80 + float64(i),
		})
	}
	svc := newService(newMemRepo(), &fakeStore{bucket: "images"}, det)

	rec, err := svc.Analyze(context.Background(), domain.ObjectRef{Key: "k.jpg"})
	require.NoError(t, err)
	assert.Len(t, rec.Labels, 10)
	// cap memotong yang confidence terendah
	assert.Equal(t, "Label14", rec.Labels[0].Name)
}

func TestAnalyze_ConfidenceClamped(t *testing.T) {
	det := &fakeDetector{
		labels: []domain.Label{{Name: "Cat", Confidence: 130}},
		mods:   []domain.ModerationLabel{{Name: "Violence", Confidence: 120}},
	}
	svc := newService(newMemRepo(), &fakeStore{bucket: "images"}, det)

	rec, err := svc.Analyze(context.Background(), domain.ObjectRef{Key: "k.jpg"})
	require.NoError(t, err)
	assert.Equal(t, 100.0, rec.Labels[0].Confidence)
	assert.Equal(t, 100.0, rec.ModerationLabels[0].Confidence)
}

func TestAnalyze_ObjectMissing(t *testing.T) {
	repo := newMemRepo()
	svc := newService(repo, &fakeStore{bucket: "images", missing: true}, catDetector())

	_, err := svc.Analyze(context.Background(), domain.ObjectRef{Key: "uploads/nope.jpg"})
	require.ErrorIs(t, err, domain.ErrObjectNotFound)
	assert.Equal(t, 0, repo.count(), "no record may be written for a missing object")
}

func TestAnalyze_LabelDetectorFails(t *testing.T) {
	repo := newMemRepo()
	det := catDetector()
	det.labelsErr = errors.New("vision timeout")
	svc := newService(repo, &fakeStore{bucket: "images"}, det)

	_, err := svc.Analyze(context.Background(), domain.ObjectRef{Key: "k.jpg"})
	require.ErrorIs(t, err, domain.ErrAnalysisFailed)
	assert.Equal(t, 0, repo.count(), "fail-fast: no partial record")
}

func TestAnalyze_ModerationDetectorFails(t *testing.T) {
	repo := newMemRepo()
	det := catDetector()
	det.modsErr = errors.New("503 from vision service")
	svc := newService(repo, &fakeStore{bucket: "images"}, det)

	_, err := svc.Analyze(context.Background(), domain.ObjectRef{Key: "k.jpg"})
	require.ErrorIs(t, err, domain.ErrAnalysisFailed)
	assert.Equal(t, 0, repo.count())
}

func TestAnalyze_TextDetectorDegrades(t *testing.T) {
	repo := newMemRepo()
	det := catDetector()
	det.textsErr = errors.New("text endpoint unavailable")
	svc := newService(repo, &fakeStore{bucket: "images"}, det)
	svc.Opts.DetectText = true

	rec, err := svc.Analyze(context.Background(), domain.ObjectRef{Key: "k.jpg"})
	require.NoError(t, err, "optional text detection must not fail the analysis")
	assert.Empty(t, rec.TextDetections)
	assert.Equal(t, 1, repo.count())
}

func TestAnalyze_PersistenceFails(t *testing.T) {
	repo := newMemRepo()
	repo.saveErr = errors.New("table gone")
	svc := newService(repo, &fakeStore{bucket: "images"}, catDetector())

	rec, err := svc.Analyze(context.Background(), domain.ObjectRef{Key: "k.jpg"})
	require.ErrorIs(t, err, domain.ErrPersistenceFailed)
	// hasil analisa tetap tersedia untuk immediate caller
	require.NotNil(t, rec)
	assert.NotEmpty(t, rec.Labels)
}

func TestAnalyze_Idempotent(t *testing.T) {
	repo := newMemRepo()
	svc := newService(repo, &fakeStore{bucket: "images"}, catDetector())

	first, err := svc.Analyze(context.Background(), domain.ObjectRef{Key: "uploads/1_cat.jpg"})
	require.NoError(t, err)
	second, err := svc.Analyze(context.Background(), domain.ObjectRef{Key: "uploads/1_cat.jpg"})
	require.NoError(t, err)

	assert.Equal(t, 1, repo.count(), "re-analysis overwrites, never duplicates")
	assert.True(t, second.CreatedAt.After(first.CreatedAt))

	list, err := svc.ListHistory(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.ImageID("uploads/1_cat.jpg"), list[0].ImageID)
}

func TestAnalyze_InvalidatesHistoryCache(t *testing.T) {
	repo := newMemRepo()
	c := newFakeCache()
	svc := newService(repo, &fakeStore{bucket: "images"}, catDetector())
	svc.Cache = c

	// warm cache
	_, err := svc.ListHistory(context.Background(), 10)
	require.NoError(t, err)

	_, err = svc.Analyze(context.Background(), domain.ObjectRef{Key: "k.jpg"})
	require.NoError(t, err)
	assert.Equal(t, 1, c.invalidated)
}

//
// ==== ListHistory ====
//

func TestListHistory_OrderAndLimit(t *testing.T) {
	repo := newMemRepo()
	svc := newService(repo, &fakeStore{bucket: "images"}, catDetector())

	for i := 0; i < 5; i++ {
		_, err := svc.Analyze(context.Background(), domain.ObjectRef{Key: fmt.Sprintf("uploads/%d.jpg", i)})
		require.NoError(t, err)
	}

	list, err := svc.ListHistory(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].CreatedAt.After(list[i-1].CreatedAt),
			"createdAt must be non-increasing")
	}
	assert.Equal(t, domain.ImageID("uploads/4.jpg"), list[0].ImageID)
}

func TestListHistory_DefaultLimit(t *testing.T) {
	repo := newMemRepo()
	svc := newService(repo, &fakeStore{bucket: "images"}, catDetector())

	for i := 0; i < 12; i++ {
		_, err := svc.Analyze(context.Background(), domain.ObjectRef{Key: fmt.Sprintf("uploads/%d.jpg", i)})
		require.NoError(t, err)
	}

	list, err := svc.ListHistory(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, list, 10)
}

func TestListHistory_CacheHit(t *testing.T) {
	repo := newMemRepo()
	c := newFakeCache()
	c.entries[10] = []*domain.AnalysisRecord{{ImageID: "cached.jpg"}}
	svc := newService(repo, &fakeStore{bucket: "images"}, catDetector())
	svc.Cache = c

	list, err := svc.ListHistory(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.ImageID("cached.jpg"), list[0].ImageID)
}

type failingRepo struct{ memRepo }

func (r *failingRepo) Latest(ctx context.Context, limit int) ([]*domain.AnalysisRecord, error) {
	return nil, errors.New("db unavailable")
}

func TestListHistory_ReadFailed(t *testing.T) {
	svc := newService(newMemRepo(), &fakeStore{bucket: "images"}, catDetector())
	svc.Repo = &failingRepo{}

	_, err := svc.ListHistory(context.Background(), 10)
	require.ErrorIs(t, err, domain.ErrReadFailed)
}

//
// ==== normalization helpers ====
//

func TestDescribe_Empty(t *testing.T) {
	assert.Equal(t, "No objects detected", describe(nil))
}

func TestNormalizeText_DropsBlank(t *testing.T) {
	out := normalizeText([]domain.TextDetection{
		{Text: "STOP", Confidence: 99},
		{Text: "   ", Confidence: 80},
	})
	require.Len(t, out, 1)
	assert.Equal(t, "STOP", out[0].Text)
}
