package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/lox/afolu/internal/analysis"
	"github.com/lox/afolu/internal/carbon"
	"github.com/lox/afolu/internal/imagery"
	"github.com/lox/afolu/internal/models"
	"github.com/lox/afolu/internal/narrative"
	"github.com/lox/afolu/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxRequestBytes  = 5 << 20
)

type analysisRequest struct {
	AOI        json.RawMessage `json:"aoi"`
	StartDate  string          `json:"start_date"`
	EndDate    string          `json:"end_date"`
	CloudCover *float64        `json:"cloud_cover"`
	LandCover  bool            `json:"land_cover"`
}

func (req analysisRequest) params(now time.Time) (models.AnalysisParams, error) {
	p := analysis.DefaultParams(now)
	p.AOI = req.AOI
	p.LandCover = req.LandCover
	if req.StartDate != "" {
		t, err := time.Parse(time.DateOnly, req.StartDate)
		if err != nil {
			return p, fmt.Errorf("%w: start_date must be YYYY-MM-DD", analysis.ErrInvalidInput)
		}
		p.StartDate = t
	}
	if req.EndDate != "" {
		t, err := time.Parse(time.DateOnly, req.EndDate)
		if err != nil {
			return p, fmt.Errorf("%w: end_date must be YYYY-MM-DD", analysis.ErrInvalidInput)
		}
		p.EndDate = t
	}
	if req.CloudCover != nil {
		p.CloudCover = *req.CloudCover
	}
	return p, nil
}

func (s *Server) handleAPICreate(w http.ResponseWriter, r *http.Request) {
	var req analysisRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: request body: %v", analysis.ErrInvalidInput, err))
		return
	}
	p, err := req.params(s.now())
	if err != nil {
		writeError(w, err)
		return
	}

	a, err := s.svc.Run(r.Context(), p)
	if err != nil {
		log.Printf("api: analysis failed: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAnalysisResponse(a))
}

func (s *Server) handleAPIList(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, fmt.Errorf("%w: limit must be a positive integer", analysis.ErrInvalidInput))
			return
		}
		limit = min(n, maxListLimit)
	}
	list, err := s.svc.List(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []models.AnalysisSummary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAPIGet(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAnalysisResponse(a))
}

func (s *Server) handleAPIDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAPINarrate(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.Narrate(r.Context(), r.PathValue("id"))
	if err != nil {
		log.Printf("api: narrative failed: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAnalysisResponse(a))
}

func (s *Server) handleExport(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := s.svc.Export(r.PathValue("id"), format)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", e.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", e.Filename))
		w.Header().Set("Content-Length", strconv.Itoa(len(e.Data)))
		w.Write(e.Data)
	}
}

// statusClientClosedRequest is nginx's code for a request the client gave up
// on before the response was ready.
const statusClientClosedRequest = 499

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	var upstream *imagery.StatusError
	switch {
	case errors.Is(err, analysis.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, imagery.ErrNoImagery):
		return http.StatusUnprocessableEntity
	case errors.Is(err, imagery.ErrMissingCredentials), errors.Is(err, narrative.ErrMissingCredentials):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.As(err, &upstream), errors.Is(err, carbon.ErrInvalidIndex):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: write response: %v", err)
	}
}
