package imagery

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/lox/afolu/internal/aoi"
	"github.com/lox/afolu/internal/httputil"
	"github.com/lox/afolu/internal/models"
)

const (
	DefaultEarthEngineURL = "https://earthengine.googleapis.com/v1"
	earthEngineScope      = "https://www.googleapis.com/auth/earthengine"

	SentinelCollection = "COPERNICUS/S2_SR_HARMONIZED"
	ReflectanceScale   = 10000.0
	IndexScale         = 30
	LandCoverScale     = 10
	MaxPixels          = 1e13
)

// worldCoverCollection maps a year to its ESA WorldCover release.
func worldCoverCollection(year int) string {
	if year <= 2020 {
		return "ESA/WorldCover/v100"
	}
	return "ESA/WorldCover/v200"
}

// LandCoverYears are the years with a published WorldCover map.
var LandCoverYears = []int{2020, 2021}

type EarthEngineConfig struct {
	Project         string
	Token           string // static OAuth access token
	CredentialsFile string // service-account JSON key
	BaseURL         string
}

// EarthEngine computes index statistics through the Earth Engine REST API.
type EarthEngine struct {
	caller
	project string
	baseURL string
}

// NewEarthEngine returns ErrMissingCredentials when neither a token nor a
// service-account key is configured.
func NewEarthEngine(ctx context.Context, cfg EarthEngineConfig, rec Recorder) (*EarthEngine, error) {
	var ts oauth2.TokenSource
	switch {
	case cfg.Token != "":
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"})
	case cfg.CredentialsFile != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read earth engine credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, earthEngineScope)
		if err != nil {
			return nil, fmt.Errorf("parse earth engine credentials: %w", err)
		}
		ts = creds.TokenSource
		if cfg.Project == "" {
			cfg.Project = creds.ProjectID
		}
	default:
		return nil, fmt.Errorf("earth engine: %w", ErrMissingCredentials)
	}
	if cfg.Project == "" {
		return nil, fmt.Errorf("earth engine project not set: %w", ErrMissingCredentials)
	}

	// Token requests use the default timeout; imagery calls get the longer one.
	base := httputil.NewClient()
	client := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), ts)
	client.Timeout = httputil.ImageryTimeout

	return newEarthEngine(client, cfg, rec), nil
}

func newEarthEngine(client *http.Client, cfg EarthEngineConfig, rec Recorder) *EarthEngine {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultEarthEngineURL
	}
	return &EarthEngine{
		caller:  caller{client: client, provider: "earthengine", recorder: rec},
		project: cfg.Project,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (e *EarthEngine) Name() string { return "earthengine" }

func (e *EarthEngine) computeURL() string {
	return fmt.Sprintf("%s/projects/%s/value:compute", e.baseURL, e.project)
}

func (e *EarthEngine) compute(ctx context.Context, endpoint string, expr Expression, out any) error {
	body, err := e.postJSON(ctx, endpoint, e.computeURL(), map[string]any{"expression": expr})
	if err != nil {
		return err
	}
	var resp struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("unmarshal %s: %w", endpoint, err)
	}
	if len(resp.Result) == 0 {
		return fmt.Errorf("%s: empty result", endpoint)
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", endpoint, err)
	}
	return nil
}

func (e *EarthEngine) IndexStats(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var count float64
	if err := e.compute(ctx, "value:compute/size", countExpression(req), &count); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrNoImagery
	}

	var means struct {
		NDVI *float64 `json:"NDVI"`
		EVI  *float64 `json:"EVI"`
		LAI  *float64 `json:"LAI"`
		NBR  *float64 `json:"NBR"`
	}
	if err := e.compute(ctx, "value:compute/indices", indexExpression(req), &means); err != nil {
		return nil, err
	}
	if means.NDVI == nil {
		// every pixel in the AOI was masked
		return nil, ErrNoImagery
	}

	log.Printf("earthengine: %d scenes, NDVI %.4f", int(count), *means.NDVI)
	return &Result{
		Indices: models.IndexStats{
			NDVI: *means.NDVI,
			EVI:  deref(means.EVI),
			LAI:  deref(means.LAI),
			NBR:  deref(means.NBR),
		},
		ImageCount: int(count),
	}, nil
}

func (e *EarthEngine) LandCoverChange(ctx context.Context, area *aoi.AOI, fromYear, toYear int) (*models.LandCoverChange, error) {
	if !supportedLandCoverYear(fromYear) || !supportedLandCoverYear(toYear) {
		return nil, fmt.Errorf("land cover years %d-%d: available years are %v", fromYear, toYear, LandCoverYears)
	}

	var stats struct {
		Mean *float64 `json:"Change_mean"`
		Sum  *float64 `json:"Change_sum"`
	}
	if err := e.compute(ctx, "value:compute/landcover", changeExpression(area, fromYear, toYear), &stats); err != nil {
		return nil, err
	}
	if stats.Mean == nil {
		return nil, fmt.Errorf("land cover change: %w", ErrNoImagery)
	}
	return &models.LandCoverChange{
		FromYear:        fromYear,
		ToYear:          toYear,
		ChangedFraction: *stats.Mean,
		ChangedPixels:   deref(stats.Sum),
	}, nil
}

func supportedLandCoverYear(year int) bool {
	for _, y := range LandCoverYears {
		if y == year {
			return true
		}
	}
	return false
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
