package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mikey/mail-labeler/internal/core"
	"github.com/mikey/mail-labeler/internal/ingest"
	"github.com/mikey/mail-labeler/internal/ports"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

type messageRequest struct {
	Sender  string `json:"sender"`
	Subject string `json:"subject"`
}

type correctionRequest struct {
	Sender  string `json:"sender"`
	Subject string `json:"subject"`
	Label   string `json:"label"`
}

type thresholdRequest struct {
	Value *float64 `json:"value"`
}

type learnResponse struct {
	ThreadID string `json:"thread_id"`
	Samples  int    `json:"samples"`
}

type runResponse struct {
	*ingest.RunResult
	Error string `json:"error,omitempty"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	email := &core.Email{From: req.Sender, Subject: req.Subject}
	writeJSON(w, http.StatusOK, ports.Decide(r.Context(), s.svc, s.thresholds, email, s.logger))
}

func (s *Server) handleCorrect(w http.ResponseWriter, r *http.Request) {
	var req correctionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.svc.Correct(req.Sender, req.Subject, req.Label); err != nil {
		if errors.Is(err, core.ErrEmptyLabel) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Stats())
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Disposition", `attachment; filename="mail-labeler-export.json"`)
	writeJSON(w, http.StatusOK, s.svc.Export())
}

// handleInvalidate drops one cached prediction when sender or subject is
// given, otherwise the whole cache
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has("sender") || q.Has("subject") {
		s.svc.Invalidate(q.Get("sender"), q.Get("subject"))
	} else {
		s.svc.ResetPredictions()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecent(w http.ResponseWriter, _ *http.Request) {
	recent := s.svc.RecentPredictions()
	if recent == nil {
		recent = []core.TracedPrediction{}
	}
	writeJSON(w, http.StatusOK, recent)
}

func (s *Server) handleThresholds(w http.ResponseWriter, r *http.Request) {
	all, err := s.thresholds.All(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) handleSetThreshold(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req thresholdRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, errors.New("value is required"))
		return
	}

	if err := s.thresholds.Set(r.Context(), name, *req.Value); err != nil {
		if errors.Is(err, core.ErrUnknownThreshold) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{name: *req.Value})
}

func (s *Server) handleLearnThread(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	n, err := s.svc.LearnThread(r.Context(), id)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, core.ErrNoThreadSource) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, learnResponse{ThreadID: id, Samples: n})
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ingester.Status())
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.ingester.Run(r.Context())
	s.writeRun(w, result, err)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	result, err := s.ingester.Resume(r.Context())
	if result == nil && err == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeRun(w, result, err)
}

// writeRun reports a halted run as accepted: the queue keeps the failed
// item at its head and the next trigger resumes from it
func (s *Server) writeRun(w http.ResponseWriter, result *ingest.RunResult, err error) {
	if result == nil {
		result = &ingest.RunResult{}
	}
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, runResponse{RunResult: result})
	case errors.Is(err, ingest.ErrHalted):
		writeJSON(w, http.StatusAccepted, runResponse{RunResult: result, Error: err.Error()})
	default:
		s.logger.Warn("Ingestion run failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, runResponse{RunResult: result, Error: err.Error()})
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
