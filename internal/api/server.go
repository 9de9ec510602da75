package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/unsubkit/unsubkit/internal/engine"
)

// Runner processes one unsubscribe link end to end.
type Runner interface {
	Run(ctx context.Context, link engine.Link) *engine.UnsubscribeResult
}

// LinkFinder extracts unsubscribe candidates from email content.
type LinkFinder interface {
	Links(ctx context.Context, emailContent string) []engine.Link
}

// Server exposes the unsubscribe automation over HTTP.
type Server struct {
	runner    Runner
	extractor LinkFinder
	zlog      *zap.Logger
}

func NewServer(runner Runner, extractor LinkFinder, zlog *zap.Logger) *Server {
	if zlog == nil {
		zlog = zap.NewNop()
	}
	return &Server{runner: runner, extractor: extractor, zlog: zlog}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/unsubscribe", s.handleUnsubscribe).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	return r
}

type unsubscribeRequest struct {
	HTMLBody     string `json:"htmlBody"`
	EmailContent string `json:"emailContent"`
}

// LinkResult pairs one extracted link with its run result.
type LinkResult struct {
	Link   engine.Link               `json:"link"`
	Result *engine.UnsubscribeResult `json:"result"`
}

// Summary aggregates the batch outcome.
type Summary struct {
	Total          int `json:"total"`
	Succeeded      int `json:"succeeded"`
	CaptchaBlocked int `json:"captchaBlocked"`
	Failed         int `json:"failed"`
}

// UnsubscribeResponse is the batch response shape.
type UnsubscribeResponse struct {
	Success bool         `json:"success"`
	Results []LinkResult `json:"results"`
	Summary Summary      `json:"summary"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read request body"})
		return
	}

	content := extractContent(body)
	if strings.TrimSpace(content) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "request body is empty; send raw email content or {\"htmlBody\": ...}"})
		return
	}

	links := s.extractor.Links(r.Context(), content)
	s.zlog.Info("unsubscribe batch started", zap.Int("links", len(links)))

	resp := UnsubscribeResponse{Results: make([]LinkResult, 0, len(links))}
	resp.Summary.Total = len(links)

	// Links are processed strictly sequentially; each run owns its own
	// browsing context and run id.
	for _, link := range links {
		result := s.runner.Run(r.Context(), link)
		resp.Results = append(resp.Results, LinkResult{Link: link, Result: result})

		switch {
		case result.CaptchaBlocked:
			resp.Summary.CaptchaBlocked++
		case result.Success:
			resp.Summary.Succeeded++
		default:
			resp.Summary.Failed++
		}
	}

	resp.Success = resp.Summary.Total > 0 && resp.Summary.Succeeded == resp.Summary.Total

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// extractContent accepts either a JSON envelope with htmlBody/emailContent
// or the raw email itself.
func extractContent(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return trimmed
	}

	var req unsubscribeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		// Not our envelope; treat it as raw content.
		return trimmed
	}
	if req.HTMLBody != "" {
		return req.HTMLBody
	}
	return req.EmailContent
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
