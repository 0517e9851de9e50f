package api

import (
	"embed"
	"fmt"
	"html/template"
	"time"
)

//go:embed templates/*
var templateFS embed.FS

// newTemplates parses each page together with the shared layout.
func newTemplates() *template.Template {
	funcs := template.FuncMap{
		"f2":   func(v float64) string { return fmt.Sprintf("%.2f", v) },
		"f3":   func(v float64) string { return fmt.Sprintf("%.3f", v) },
		"f0":   func(v float64) string { return fmt.Sprintf("%.0f", v) },
		"pct":  func(v float64) string { return fmt.Sprintf("%.1f", v*100) },
		"date": func(t time.Time) string { return t.Format(time.DateOnly) },
		"datetime": func(t time.Time) string {
			return t.UTC().Format("2006-01-02 15:04 UTC")
		},
	}
	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}
