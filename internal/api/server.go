package api

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/afolu/internal/analysis"
	"github.com/lox/afolu/internal/store"
)

type Server struct {
	svc   *analysis.Service
	store *store.Store
	port  string
	tmpl  *template.Template
	now   func() time.Time
}

func NewServer(svc *analysis.Service, st *store.Store, port string) *Server {
	return &Server{
		svc:   svc,
		store: st,
		port:  port,
		tmpl:  newTemplates(),
		now:   time.Now,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /analyses/{id}", s.handleAnalysisPage)
	mux.HandleFunc("GET /info", s.handleInfo)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/analyses", s.handleAPICreate)
	mux.HandleFunc("GET /api/analyses", s.handleAPIList)
	mux.HandleFunc("GET /api/analyses/{id}", s.handleAPIGet)
	mux.HandleFunc("DELETE /api/analyses/{id}", s.handleAPIDelete)
	mux.HandleFunc("POST /api/analyses/{id}/narrative", s.handleAPINarrate)
	mux.HandleFunc("GET /api/analyses/{id}/report.txt", s.handleExport(analysis.FormatText))
	mux.HandleFunc("GET /api/analyses/{id}/report.csv", s.handleExport(analysis.FormatCSV))
	mux.HandleFunc("GET /api/analyses/{id}/chart.png", s.handleExport(analysis.FormatChart))
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
