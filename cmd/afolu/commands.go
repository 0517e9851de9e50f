package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/gammazero/workerpool"
	"github.com/schollz/progressbar/v3"

	"github.com/lox/afolu/internal/analysis"
	"github.com/lox/afolu/internal/api"
	"github.com/lox/afolu/internal/cache"
	"github.com/lox/afolu/internal/carbon"
	"github.com/lox/afolu/internal/imagery"
	"github.com/lox/afolu/internal/maintenance"
	"github.com/lox/afolu/internal/models"
)

type ServeCmd struct {
	Port          string `help:"HTTP server port." default:"8080" env:"PORT"`
	NoMaintenance bool   `help:"Disable the daily pruning of payloads, audit rows and cache."`
}

func (c *ServeCmd) Run(g *Globals) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := g.newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if !c.NoMaintenance {
		go maintenance.NewScheduler(a.store, a.cache, g.Retain).Run(ctx)
	} else {
		log.Println("maintenance disabled (--no-maintenance)")
	}

	log.Printf("server: listening on :%s (imagery: %s, narrative: %t)", c.Port, a.svc.ProviderName(), a.svc.NarratorConfigured())
	if err := api.NewServer(a.svc, a.store, c.Port).Run(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	log.Println("server: shut down")
	return nil
}

type AnalyzeCmd struct {
	Files       []string      `arg:"" optional:"" type:"existingfile" help:"GeoJSON files with the areas of interest. Without files the example area is used."`
	Start       string        `help:"Start date (YYYY-MM-DD). Defaults to one year before --end."`
	End         string        `help:"End date (YYYY-MM-DD). Defaults to today."`
	CloudCover  float64       `help:"Maximum cloudy pixel percentage." default:"10"`
	LandCover   bool          `help:"Also compare WorldCover 2020 and 2021."`
	NoNarrative bool          `help:"Skip the LLM narrative."`
	Out         string        `help:"Directory for TXT and CSV reports." default:"reports" type:"path"`
	Concurrency int           `help:"Areas analysed in parallel." default:"2"`
	Timeout     time.Duration `help:"Timeout per area." default:"10m"`
}

func (c *AnalyzeCmd) params(now time.Time) (models.AnalysisParams, error) {
	p := analysis.DefaultParams(now)
	p.CloudCover = c.CloudCover
	p.LandCover = c.LandCover
	if c.End != "" {
		t, err := time.Parse(time.DateOnly, c.End)
		if err != nil {
			return p, fmt.Errorf("--end: %w", err)
		}
		p.EndDate = t
		p.StartDate = t.Add(-analysis.DefaultPeriod)
	}
	if c.Start != "" {
		t, err := time.Parse(time.DateOnly, c.Start)
		if err != nil {
			return p, fmt.Errorf("--start: %w", err)
		}
		p.StartDate = t
	}
	return p, nil
}

type analyzeResult struct {
	source string
	a      *models.Analysis
	err    error
}

func (c *AnalyzeCmd) Run(g *Globals) error {
	ctx, cancel := signalContext()
	defer cancel()

	base, err := c.params(time.Now())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.Out, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	deps, err := g.newApp(ctx)
	if err != nil {
		return err
	}
	defer deps.close()
	svc := deps.svc

	sources := c.Files
	if len(sources) == 0 {
		sources = []string{""}
	}

	var (
		mu      sync.Mutex
		results = make([]analyzeResult, len(sources))
		bar     = progressbar.Default(int64(len(sources)), "Analysing areas")
	)
	wp := workerpool.New(max(c.Concurrency, 1))
	for i, src := range sources {
		wp.Submit(func() {
			a, err := c.analyzeOne(ctx, svc, base, src)
			mu.Lock()
			results[i] = analyzeResult{source: src, a: a, err: err}
			mu.Unlock()
			bar.Add(1)
		})
	}
	wp.StopWait()
	bar.Finish()

	var failed []error
	for _, r := range results {
		name := r.source
		if name == "" {
			name = "example area"
		}
		if r.err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", name, r.err))
			continue
		}
		if err := c.printResult(svc, name, r.a); err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(failed...)
}

func (c *AnalyzeCmd) analyzeOne(ctx context.Context, svc *analysis.Service, base models.AnalysisParams, src string) (*models.Analysis, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	p := base
	if src != "" {
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, err
		}
		p.AOI = data
	}

	a, err := svc.Run(ctx, p)
	if err != nil {
		return nil, err
	}
	if c.NoNarrative || !svc.NarratorConfigured() {
		return a, nil
	}
	narrated, err := svc.Narrate(ctx, a.ID)
	if err != nil {
		log.Printf("analyze: narrative for %s: %v", a.ID, err)
		return a, nil
	}
	return narrated, nil
}

func (c *AnalyzeCmd) printResult(svc *analysis.Service, name string, a *models.Analysis) error {
	for _, format := range []string{analysis.FormatText, analysis.FormatCSV} {
		e, err := svc.Export(a.ID, format)
		if err != nil {
			return err
		}
		path := filepath.Join(c.Out, strings.Replace(e.Filename, "carbon_", "carbon_"+a.ID[:8]+"_", 1))
		if err := os.WriteFile(path, e.Data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", format, err)
		}
		fmt.Printf("%s: wrote %s\n", name, path)
	}

	md := summaryMarkdown(name, a)
	if text := a.NarrativeText(); text != "" {
		md += "\n" + text
	} else if !c.NoNarrative {
		md += "\n_No narrative: set OPENAI_API_KEY, or check the log for generation errors._\n"
	}
	return renderMarkdown(md)
}

func summaryMarkdown(name string, a *models.Analysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", name)
	fmt.Fprintf(&b, "Analysis `%s` from %s, %s to %s, %d images, %.2f ha.\n\n",
		a.ID, a.Provider, a.StartDate.Format(time.DateOnly), a.EndDate.Format(time.DateOnly), a.ImageCount, a.AreaHectares)
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| NDVI | %.3f (%s) |\n", a.Indices.NDVI, carbon.ClassifyNDVI(a.Indices.NDVI))
	fmt.Fprintf(&b, "| EVI | %.3f |\n| LAI | %.2f |\n| NBR | %.3f |\n", a.Indices.EVI, a.Indices.LAI, a.Indices.NBR)
	fmt.Fprintf(&b, "| AGB | %.2f Mg/ha ± %d%% |\n", a.Carbon.AGB, carbon.UncertaintyPct)
	fmt.Fprintf(&b, "| Carbon | %.2f tC/ha ± %d%% |\n", a.Carbon.Carbon, carbon.UncertaintyPct)
	fmt.Fprintf(&b, "| CO₂ | %.2f tCO₂/ha/yr ± %d%% |\n", a.Carbon.CO2, carbon.UncertaintyPct)
	fmt.Fprintf(&b, "\n**%s**\n", carbon.Certification(a.Carbon.CO2).Description())
	if lc := a.LandCover; lc != nil {
		fmt.Fprintf(&b, "\nLand cover change %d to %d: %.1f%% of the area.\n", lc.FromYear, lc.ToYear, lc.ChangedFraction*100)
	}
	for _, w := range a.Warnings {
		fmt.Fprintf(&b, "\n> %s\n", w)
	}
	return b.String()
}

func renderMarkdown(md string) error {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return err
	}
	out, err := r.Render(md)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2e7d32"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#78909c"))
)

type HistoryCmd struct {
	Limit int `help:"Number of analyses to list." default:"20"`
}

func (c *HistoryCmd) Run(g *Globals) error {
	st, closeDB, err := openStore(g.DB)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeDB()

	list, err := st.ListAnalyses(c.Limit)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println(mutedStyle.Render("No analyses yet."))
		return nil
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("%-36s  %-16s  %-12s  %10s  %-23s  %6s  %8s",
		"ID", "Created", "Provider", "Area (ha)", "Period", "NDVI", "tCO2/ha")))
	for _, s := range list {
		line := fmt.Sprintf("%-36s  %-16s  %-12s  %10.2f  %s to %s  %6.3f  %8.2f",
			s.ID, s.CreatedAt.Format("2006-01-02 15:04"), s.Provider, s.AreaHectares,
			s.StartDate.Format(time.DateOnly), s.EndDate.Format(time.DateOnly), s.NDVI, s.CO2)
		if s.HasNarrative {
			line += mutedStyle.Render("  narrated")
		}
		fmt.Println(line)
	}
	return nil
}

type ShowCmd struct {
	ID string `arg:"" help:"Analysis ID."`
}

func (c *ShowCmd) Run(g *Globals) error {
	st, closeDB, err := openStore(g.DB)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeDB()

	a, err := st.GetAnalysis(c.ID)
	if err != nil {
		return err
	}
	md := summaryMarkdown("Analysis "+a.CreatedAt.Format(time.DateOnly), a)
	if text := a.NarrativeText(); text != "" {
		md += "\n" + text
	}
	return renderMarkdown(md)
}

type CleanupCmd struct{}

func (c *CleanupCmd) Run(g *Globals) error {
	st, closeDB, err := openStore(g.DB)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeDB()

	stats, err := st.GetRawPayloadStats()
	if err != nil {
		return err
	}
	log.Printf("cleanup: %d archived payloads (%d bytes) before pruning", stats.TotalCount, stats.TotalSizeBytes)

	imageryCache := cache.New[imagery.Result](g.CacheDir, g.CacheTTL)
	res, err := maintenance.NewScheduler(st, imageryCache, g.Retain).RunOnce()
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	log.Printf("cleanup: removed %d payloads and %d imagery runs older than %d days, %d expired cache entries",
		res.Payloads, res.ImageryRuns, g.Retain, res.CacheEntries)
	return nil
}
