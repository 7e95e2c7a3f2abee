// Package client is a Go driver for the imagesight HTTP API. It walks the
// upload -> analyze -> history workflow as an explicit state machine so UIs
// can render progressive state, and keeps the history track independent from
// the main track.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// State posisi main track
type State string

const (
	StateIdle         State = "idle"
	StateFileSelected State = "file_selected"
	StateUploading    State = "uploading"
	StateUploaded     State = "uploaded"
	StateAnalyzing    State = "analyzing"
	StateResults      State = "results"
	StateFailed       State = "failed"
)

// HistoryState track history, jalan independen dari main track
type HistoryState string

const (
	HistoryIdle    HistoryState = "history_idle"
	HistoryLoading HistoryState = "history_loading"
	HistoryLoaded  HistoryState = "history_loaded"
	HistoryFailed  HistoryState = "history_failed"
)

// ErrUserMessage pesan generik yang aman ditampilkan ke user,
// detail errornya ada di LastError
const ErrUserMessage = "something went wrong while processing the image"

// AnalysisRecord mirror response shape server
type AnalysisRecord struct {
	ImageID     string `json:"imageId"`
	S3Bucket    string `json:"s3Bucket"`
	S3Key       string `json:"s3Key"`
	S3URL       string `json:"s3Url,omitempty"`
	Description string `json:"description,omitempty"`
	Labels      []struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	} `json:"labels"`
	ModerationLabels []struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
		Category   string  `json:"category,omitempty"`
	} `json:"moderationLabels"`
	TextDetections []struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	} `json:"textDetections,omitempty"`
	DurationMS int64     `json:"durationMs,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type uploadGrant struct {
	URL              string `json:"url"`
	ExpiresInSeconds int    `json:"expiresInSeconds"`
}

// Config konfigurasi eksplisit, tidak ada endpoint global
type Config struct {
	BaseURL      string       // required, contoh "http://localhost:8080"
	HTTPClient   *http.Client // optional
	HistoryLimit int          // default 10

	// OnTransition dipanggil setiap main track pindah state (optional)
	OnTransition func(State)
	// OnHistory dipanggil setiap history track pindah state (optional)
	OnHistory func(HistoryState, []AnalysisRecord)
}

// Driver state machine untuk satu sesi upload+analyze
type Driver struct {
	cfg Config

	mu           sync.Mutex
	state        State
	historyState HistoryState
	filename     string
	contentType  string
	lastErr      error
	results      *AnalysisRecord
	history      []AnalysisRecord
}

func New(cfg Config) (*Driver, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("client: BaseURL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("client: invalid BaseURL: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	return &Driver{cfg: cfg, state: StateIdle, historyState: HistoryIdle}, nil
}

func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Driver) HistoryState() HistoryState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.historyState
}

// Results hasil analisa terakhir, nil kalau belum ada
func (d *Driver) Results() *AnalysisRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.results
}

// History snapshot list terakhir yang berhasil di-load
func (d *Driver) History() []AnalysisRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.history
}

// LastError error detail untuk diagnostics, user cukup lihat ErrUserMessage
func (d *Driver) LastError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

func (d *Driver) transition(s State) {
	d.mu.Lock()
	d.state = s
	cb := d.cfg.OnTransition
	d.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

func (d *Driver) historyTransition(s HistoryState, recs []AnalysisRecord) {
	d.mu.Lock()
	d.historyState = s
	if recs != nil {
		d.history = recs
	}
	cb := d.cfg.OnHistory
	d.mu.Unlock()
	if cb != nil {
		cb(s, recs)
	}
}

// SelectFile transisi Idle/Failed -> FileSelected. Nama kosong ditolak.
func (d *Driver) SelectFile(filename, contentType string) error {
	if strings.TrimSpace(filename) == "" {
		return fmt.Errorf("client: a file must be selected")
	}
	d.mu.Lock()
	d.filename = filename
	d.contentType = contentType
	d.lastErr = nil
	d.results = nil
	d.mu.Unlock()
	d.transition(StateFileSelected)
	return nil
}

// Run jalankan seluruh workflow untuk file yang sudah dipilih:
// upload-url -> PUT bytes -> analyze. Gagal di step manapun = StateFailed
// (user bisa retry via SelectFile/Run lagi). Sukses = StateResults, lalu
// history track refresh jalan sebagai background task yang failure-nya
// tidak menyentuh main track.
func (d *Driver) Run(ctx context.Context, body io.Reader) (*AnalysisRecord, error) {
	d.mu.Lock()
	if d.state != StateFileSelected && d.state != StateFailed {
		st := d.state
		d.mu.Unlock()
		return nil, fmt.Errorf("client: cannot run from state %q, select a file first", st)
	}
	filename, contentType := d.filename, d.contentType
	d.mu.Unlock()

	key := UploadKey(filename)

	// 1. minta presigned URL
	grant, err := d.requestUploadURL(ctx, key, contentType)
	if err != nil {
		return nil, d.fail(err)
	}

	// 2. tulis bytes langsung ke object store
	d.transition(StateUploading)
	if err := d.put(ctx, grant.URL, contentType, body); err != nil {
		return nil, d.fail(err)
	}
	d.transition(StateUploaded)

	// 3. trigger analisa
	d.transition(StateAnalyzing)
	rec, err := d.requestAnalyze(ctx, key)
	if err != nil {
		return nil, d.fail(err)
	}

	d.mu.Lock()
	d.results = rec
	d.mu.Unlock()
	d.transition(StateResults)

	// refresh history best-effort di background
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_, _ = d.RefreshHistory(ctx)
	}()

	return rec, nil
}

func (d *Driver) fail(err error) error {
	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
	d.transition(StateFailed)
	return fmt.Errorf("%s: %w", ErrUserMessage, err)
}

// RefreshHistory load history track sekali. Boleh dipanggil kapan saja,
// termasuk paralel dengan Run.
func (d *Driver) RefreshHistory(ctx context.Context) ([]AnalysisRecord, error) {
	d.historyTransition(HistoryLoading, nil)

	u := d.cfg.BaseURL + "/v1/history?limit=" + strconv.Itoa(d.cfg.HistoryLimit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		d.historyTransition(HistoryFailed, nil)
		return nil, err
	}
	var recs []AnalysisRecord
	if err := d.do(req, &recs); err != nil {
		d.historyTransition(HistoryFailed, nil)
		return nil, err
	}
	d.historyTransition(HistoryLoaded, recs)
	return recs, nil
}

//
// ==== HTTP plumbing ====
//

func (d *Driver) requestUploadURL(ctx context.Context, key, contentType string) (*uploadGrant, error) {
	payload, _ := json.Marshal(map[string]string{
		"filename": key,
		"filetype": contentType,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.BaseURL+"/v1/upload-url", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var grant uploadGrant
	if err := d.do(req, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

func (d *Driver) put(ctx context.Context, uploadURL, contentType string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := d.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("object store upload failed: status %d", resp.StatusCode)
	}
	return nil
}

func (d *Driver) requestAnalyze(ctx context.Context, key string) (*AnalysisRecord, error) {
	payload, _ := json.Marshal(map[string]string{"key": key})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.BaseURL+"/v1/analyze", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var rec AnalysisRecord
	if err := d.do(req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (d *Driver) do(req *http.Request, out any) error {
	resp, err := d.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("api error (status %d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("api error: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// UploadKey bikin object key unik dari nama file:
// "uploads/<unix>_<sanitized name>"
func UploadKey(filename string) string {
	return fmt.Sprintf("uploads/%d_%s", time.Now().Unix(), sanitizeFilename(filename))
}

func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
