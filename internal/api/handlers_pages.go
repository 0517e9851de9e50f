package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/lox/afolu/internal/analysis"
	"github.com/lox/afolu/internal/store"
)

const recentAnalyses = 10

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	recent, err := s.svc.List(recentAnalyses)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defaults := analysis.DefaultParams(s.now())
	data := IndexData{
		Provider:           s.svc.ProviderName(),
		NarratorConfigured: s.svc.NarratorConfigured(),
		DefaultStart:       defaults.StartDate,
		DefaultEnd:         defaults.EndDate,
		DefaultCloudCover:  defaults.CloudCover,
		Recent:             recent,
	}
	s.render(w, "index.html", data)
}

func (s *Server) handleAnalysisPage(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.Get(r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.render(w, "analysis.html", newAnalysisView(a, s.svc.NarratorConfigured()))
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.render(w, "info.html", nil)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		log.Printf("template error: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.store.Ping(); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
		return
	}

	health := HealthStatus{
		Status:           "ok",
		Provider:         s.svc.ProviderName(),
		NarrativeEnabled: s.svc.NarratorConfigured(),
	}

	version, err := s.store.MigrationVersion()
	if err != nil {
		health.Errors = append(health.Errors, "migrations: "+err.Error())
	}
	health.SchemaVersion = version

	// Upstream failures are reported without failing the check.
	health.Imagery, err = s.store.GetImageryHealth(1)
	if err != nil {
		health.Errors = append(health.Errors, "imagery runs: "+err.Error())
	}
	health.ImageryFailures, err = s.store.CountUpstreamFailures(24)
	if err != nil {
		health.Errors = append(health.Errors, "imagery failures: "+err.Error())
	}
	recent, err := s.store.GetRecentUpstreamFailures(1, 3)
	if err != nil {
		health.Errors = append(health.Errors, "imagery failures: "+err.Error())
	}
	for _, run := range recent {
		health.ImageryErrors = append(health.ImageryErrors, run.ErrorMessage.String)
	}

	if health.Provider == "unconfigured" {
		health.Status = "degraded"
	}
	if len(health.Errors) > 0 {
		health.Status = "error"
	}

	if health.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(health); err != nil {
		log.Printf("health: write response: %v", err)
	}
}
