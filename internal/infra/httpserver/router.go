package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appimages "github.com/bryanwahyu/imagesight/internal/application/images"
	domain "github.com/bryanwahyu/imagesight/internal/domain/images"
	"github.com/bryanwahyu/imagesight/internal/middleware"
)

type Router struct {
	svc *appimages.Service
}

// NewRouter expose tiga endpoint workflow + health/metrics.
// Semua response pakai permissive CORS supaya bisa diakses browser langsung.
func NewRouter(svc *appimages.Service, health http.HandlerFunc) http.Handler {
	r := &Router{svc: svc}
	mux := chi.NewRouter()

	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Amz-Date", "X-Api-Key", "X-Amz-Security-Token"},
		MaxAge:         300,
	}))

	if health == nil {
		health = func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		}
	}
	mux.Get("/health", health)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/upload-url", r.wrap(r.handleUploadURL))
		rt.Post("/analyze", r.wrap(r.handleAnalyze))
		rt.Get("/history", r.wrap(r.handleHistory))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// wrap petakan error taxonomy ke status code + body {"error": ...}
func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}

		status := http.StatusInternalServerError
		var ve *middleware.ValidationError
		switch {
		case errors.As(err, &ve):
			status = http.StatusBadRequest
		case errors.Is(err, domain.ErrObjectNotFound):
			status = http.StatusNotFound
		case errors.Is(err, domain.ErrAnalysisFailed), errors.Is(err, domain.ErrIssuanceFailed):
			status = http.StatusBadGateway
		case errors.Is(err, domain.ErrPersistenceFailed), errors.Is(err, domain.ErrReadFailed):
			status = http.StatusInternalServerError
		}

		writeJSON(w, status, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// POST /v1/upload-url
// Body: {"filename": "uploads/123_cat.jpg", "filetype": "image/jpeg"}
func (r *Router) handleUploadURL(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Filename string `json:"filename"`
		Filetype string `json:"filetype"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return &middleware.ValidationError{Field: "body", Message: "invalid JSON"}
	}
	if err := middleware.ValidateObjectName(body.Filename); err != nil {
		return err
	}
	if err := middleware.ValidateImageContentType(body.Filetype); err != nil {
		return err
	}

	grant, err := r.svc.IssueUploadURL(req.Context(), body.Filename, body.Filetype)
	if err != nil {
		return err
	}
	middleware.IncrementUploadURLs()

	writeJSON(w, http.StatusOK, grant)
	return nil
}

// POST /v1/analyze
// Body: {"key": "uploads/123_cat.jpg"}; bucket optional, default bucket server
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Bucket string `json:"bucket"`
		Key    string `json:"key"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return &middleware.ValidationError{Field: "body", Message: "invalid JSON"}
	}
	if err := middleware.ValidateObjectName(body.Key); err != nil {
		return err
	}

	middleware.IncrementAnalyses()
	rec, err := r.svc.Analyze(req.Context(), domain.ObjectRef{Bucket: body.Bucket, Key: body.Key})
	if err != nil {
		middleware.IncrementAnalysesFailed()
		return err
	}

	writeJSON(w, http.StatusOK, rec)
	return nil
}

// GET /v1/history?limit=10
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	limit := 10
	if raw := req.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return &middleware.ValidationError{Field: "limit", Message: "must be an integer"}
		}
		if err := middleware.ValidateLimit(n); err != nil {
			return err
		}
		limit = n
	}

	list, err := r.svc.ListHistory(req.Context(), limit)
	if err != nil {
		return err
	}
	middleware.IncrementHistoryReads()

	if list == nil {
		list = []*domain.AnalysisRecord{}
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}
