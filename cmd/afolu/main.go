package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"

	"github.com/lox/afolu/internal/analysis"
	"github.com/lox/afolu/internal/cache"
	"github.com/lox/afolu/internal/imagery"
	"github.com/lox/afolu/internal/narrative"
	"github.com/lox/afolu/internal/store"
)

type Globals struct {
	DB       string        `help:"Path to SQLite database." default:"data/afolu.db" env:"AFOLU_DB"`
	CacheDir string        `help:"Directory for cached imagery results." default:"data/cache" env:"AFOLU_CACHE_DIR"`
	CacheTTL time.Duration `help:"How long cached imagery results stay valid." default:"168h" env:"AFOLU_CACHE_TTL"`
	Retain   int           `help:"Days of archived payloads and audit rows to keep." default:"30" env:"AFOLU_RETENTION_DAYS"`
	Provider string        `help:"Imagery platform." enum:"earthengine,copernicus" default:"earthengine" env:"AFOLU_PROVIDER"`

	EarthEngine struct {
		Token       string `help:"Static OAuth access token." env:"EARTHENGINE_TOKEN"`
		Credentials string `help:"Service account JSON key file." env:"EE_CREDENTIALS" type:"path"`
		Project     string `help:"Cloud project registered for Earth Engine." env:"EE_PROJECT"`
		URL         string `help:"API base URL." default:"${ee_url}" env:"EE_API_URL"`
	} `embed:"" prefix:"ee-"`

	Copernicus struct {
		ClientID     string `help:"OAuth client ID." env:"COPERNICUS_CLIENT_ID"`
		ClientSecret string `help:"OAuth client secret." env:"COPERNICUS_CLIENT_SECRET"`
		TokenURL     string `help:"OAuth token URL." default:"${copernicus_token_url}" env:"COPERNICUS_TOKEN_URL"`
		URL          string `help:"Statistics API base URL." default:"${copernicus_url}" env:"COPERNICUS_API_URL"`
	} `embed:"" prefix:"copernicus-"`

	LLM struct {
		APIKey  string `help:"API key for the chat completion service." env:"OPENAI_API_KEY"`
		Model   string `help:"Model used for narratives." default:"${llm_model}" env:"LLM_MODEL"`
		BaseURL string `help:"Base URL of an OpenAI-compatible API." env:"LLM_BASE_URL"`
	} `embed:"" prefix:"llm-"`
}

type CLI struct {
	Globals

	Serve   ServeCmd   `cmd:"" default:"1" help:"Run the web dashboard."`
	Analyze AnalyzeCmd `cmd:"" help:"Analyse GeoJSON areas of interest and write reports."`
	History HistoryCmd `cmd:"" help:"List stored analyses."`
	Show    ShowCmd    `cmd:"" help:"Print a stored analysis report."`
	Cleanup CleanupCmd `cmd:"" help:"Prune archived imagery payloads and audit rows."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("afolu"),
		kong.Description("AFOLU carbon potential analysis from Sentinel-2 imagery."),
		kong.UsageOnError(),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
		kong.Vars{
			"ee_url":               imagery.DefaultEarthEngineURL,
			"copernicus_url":       imagery.DefaultCopernicusURL,
			"copernicus_token_url": imagery.DefaultCopernicusTokenURL,
			"llm_model":            narrative.DefaultModel,
		},
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}

func openStore(path string) (*store.Store, func(), error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, err
		}
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, nil, err
	}

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, err
	}
	return st, func() { db.Close() }, nil
}

// newProvider builds the selected imagery backend. A nil provider means
// credentials are missing; the service reports that per request.
func (g *Globals) newProvider(ctx context.Context, rec imagery.Recorder) imagery.Provider {
	switch g.Provider {
	case "copernicus":
		p, err := imagery.NewCopernicus(ctx, imagery.CopernicusConfig{
			ClientID:     g.Copernicus.ClientID,
			ClientSecret: g.Copernicus.ClientSecret,
			TokenURL:     g.Copernicus.TokenURL,
			BaseURL:      g.Copernicus.URL,
		}, rec)
		if err != nil {
			log.Printf("imagery: copernicus disabled: %v", err)
			return nil
		}
		return p
	default:
		p, err := imagery.NewEarthEngine(ctx, imagery.EarthEngineConfig{
			Project:         g.EarthEngine.Project,
			Token:           g.EarthEngine.Token,
			CredentialsFile: g.EarthEngine.Credentials,
			BaseURL:         g.EarthEngine.URL,
		}, rec)
		if err != nil {
			log.Printf("imagery: earth engine disabled: %v", err)
			return nil
		}
		return p
	}
}

func (g *Globals) newNarrator() analysis.Narrator {
	n, err := narrative.New(narrative.Config{
		APIKey:  g.LLM.APIKey,
		Model:   g.LLM.Model,
		BaseURL: g.LLM.BaseURL,
	})
	if err != nil {
		log.Printf("narrative: disabled: %v", err)
		return nil
	}
	return n
}

type app struct {
	svc   *analysis.Service
	store *store.Store
	cache *cache.Cache[imagery.Result]
	close func()
}

// newApp opens the store and wires the analysis pipeline.
func (g *Globals) newApp(ctx context.Context) (*app, error) {
	st, closeDB, err := openStore(g.DB)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	c := cache.New[imagery.Result](g.CacheDir, g.CacheTTL)
	return &app{
		svc:   analysis.NewService(st, g.newProvider(ctx, st), g.newNarrator(), c),
		store: st,
		cache: c,
		close: closeDB,
	}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
