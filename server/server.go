package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"vidquest/clip"
	"vidquest/core"
	"vidquest/processors"
	"vidquest/rag"
)

// Server exposes the ingest and query pipelines over HTTP.
type Server struct {
	ingestor *processors.Ingestor
	engine   *rag.Engine
	cache    *clip.Cache
}

func New(ingestor *processors.Ingestor, engine *rag.Engine, cache *clip.Cache) *Server {
	return &Server{ingestor: ingestor, engine: engine, cache: cache}
}

// Router builds the chi mux with logging and panic recovery.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/ingest", s.handleIngest)
	r.Post("/answer", s.handleAnswer)
	r.Get("/clips/{fingerprint}", s.handleClip)
	r.Get("/health", s.handleHealth)
	r.Get("/cache/stats", s.handleCacheStats)

	return r
}

type ingestRequest struct {
	VideoID      string `json:"video_id"`
	VideoPath    string `json:"video_path,omitempty"`
	SubtitlePath string `json:"subtitle_path"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.VideoID) == "" {
		writeError(w, http.StatusBadRequest, "video_id is required")
		return
	}
	if strings.TrimSpace(req.SubtitlePath) == "" {
		writeError(w, http.StatusBadRequest, "subtitle_path is required")
		return
	}

	result, err := s.ingestor.Ingest(r.Context(), req.VideoID, req.VideoPath, req.SubtitlePath)
	if err != nil {
		core.WriteJSON(w, statusFor(err), result)
		return
	}
	core.WriteJSON(w, http.StatusOK, result)
}

// answerRequest uses pointers for the option fields so an omitted field
// takes its default instead of the zero value.
type answerRequest struct {
	Query       string   `json:"query"`
	TopK        *int     `json:"top_k,omitempty"`
	MinScore    *float64 `json:"min_score,omitempty"`
	IncludeClip *bool    `json:"include_clip,omitempty"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	opts := core.DefaultQueryOptions()
	if req.TopK != nil {
		opts.TopK = *req.TopK
	}
	if req.MinScore != nil {
		opts.MinScore = *req.MinScore
	}
	if req.IncludeClip != nil {
		opts.IncludeClip = *req.IncludeClip
	}

	result, err := s.engine.Answer(r.Context(), req.Query, opts)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	core.WriteJSON(w, http.StatusOK, result)
}

// handleClip serves a cached clip file. The file is opened before the
// response starts, so a concurrent eviction cannot interrupt the stream.
func (s *Server) handleClip(w http.ResponseWriter, r *http.Request) {
	fingerprint := chi.URLParam(r, "fingerprint")
	artifact, ok := s.cache.Get(fingerprint)
	if !ok {
		writeError(w, http.StatusNotFound, "clip not found")
		return
	}

	f, err := os.Open(artifact.Path)
	if err != nil {
		writeError(w, http.StatusNotFound, "clip file unavailable")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "video/mp4")
	http.ServeContent(w, r, fingerprint+".mp4", artifact.CreatedAt, f)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	core.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	core.WriteJSON(w, http.StatusOK, s.cache.Stats())
}

func decodeJSON(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	core.WriteJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var invalid *core.InvalidQueryError
	var malformed *core.MalformedInputError
	switch {
	case errors.As(err, &invalid), errors.As(err, &malformed):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrVideoNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
