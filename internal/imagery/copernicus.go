package imagery

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/lox/afolu/internal/httputil"
	"github.com/lox/afolu/internal/models"
)

const (
	DefaultCopernicusURL      = "https://sh.dataspace.copernicus.eu/api/v1/statistics"
	DefaultCopernicusTokenURL = "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"

	// roughly 30 m at the equator
	copernicusResolutionDeg = 0.00027
	aggregationInterval     = "P10D"
)

const indexEvalscript = `//VERSION=3
function setup() {
  return {
    input: [{ bands: ["B02", "B04", "B08", "B12", "dataMask"] }],
    output: [
      { id: "indices", bands: 4, sampleType: "FLOAT32" },
      { id: "dataMask", bands: 1 }
    ]
  };
}

function evaluatePixel(s) {
  let ndvi = (s.B08 - s.B04) / (s.B08 + s.B04);
  let evi = 2.5 * (s.B08 - s.B04) / (s.B08 + 6 * s.B04 - 7.5 * s.B02 + 1);
  let lai = Math.min(4 * evi, 8);
  let nbr = (s.B08 - s.B12) / (s.B08 + s.B12);
  return { indices: [ndvi, evi, lai, nbr], dataMask: [s.dataMask] };
}
`

type CopernicusConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	BaseURL      string
}

// Copernicus computes index statistics with the Sentinel Hub Statistical API
// on the Copernicus Data Space Ecosystem.
type Copernicus struct {
	caller
	url string
}

func NewCopernicus(ctx context.Context, cfg CopernicusConfig, rec Recorder) (*Copernicus, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("copernicus: %w", ErrMissingCredentials)
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultCopernicusTokenURL
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	// Token requests use the default timeout; imagery calls get the longer one.
	base := httputil.NewClient()
	client := cc.Client(context.WithValue(ctx, oauth2.HTTPClient, base))
	client.Timeout = httputil.ImageryTimeout

	return newCopernicus(client, cfg, rec), nil
}

func newCopernicus(client *http.Client, cfg CopernicusConfig, rec Recorder) *Copernicus {
	url := cfg.BaseURL
	if url == "" {
		url = DefaultCopernicusURL
	}
	return &Copernicus{
		caller: caller{client: client, provider: "copernicus", recorder: rec},
		url:    url,
	}
}

func (c *Copernicus) Name() string { return "copernicus" }

// flexFloat accepts numbers as well as the "NaN" strings the API emits
// for fully masked intervals.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		*f = flexFloat(math.NaN())
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse stat %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}

type bandStats struct {
	Stats struct {
		Mean        flexFloat `json:"mean"`
		SampleCount int       `json:"sampleCount"`
		NoDataCount int       `json:"noDataCount"`
	} `json:"stats"`
}

type statisticsResponse struct {
	Data []struct {
		Interval struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"interval"`
		Outputs struct {
			Indices struct {
				Bands map[string]bandStats `json:"bands"`
			} `json:"indices"`
		} `json:"outputs"`
		Error *struct {
			Type string `json:"type"`
		} `json:"error,omitempty"`
	} `json:"data"`
	Status string `json:"status"`
}

func (c *Copernicus) statisticsRequest(req Request) (map[string]any, error) {
	geometry, err := req.AOI.GeoJSON()
	if err != nil {
		return nil, fmt.Errorf("encode aoi: %w", err)
	}
	return map[string]any{
		"input": map[string]any{
			"bounds": map[string]any{
				"geometry": json.RawMessage(geometry),
				"properties": map[string]string{
					"crs": "http://www.opengis.net/def/crs/OGC/1.3/CRS84",
				},
			},
			"data": []map[string]any{{
				"type": "sentinel-2-l2a",
				"dataFilter": map[string]any{
					"maxCloudCoverage": req.CloudCover,
				},
			}},
		},
		"aggregation": map[string]any{
			"timeRange": map[string]string{
				"from": req.Start.UTC().Format(time.RFC3339),
				"to":   req.End.UTC().Format(time.RFC3339),
			},
			"aggregationInterval": map[string]string{"of": aggregationInterval},
			"evalscript":          indexEvalscript,
			"resx":                copernicusResolutionDeg,
			"resy":                copernicusResolutionDeg,
		},
	}, nil
}

// IndexStats returns the median of per-interval AOI means. Intervals with
// no valid samples are skipped; the image count is the number of intervals
// that contributed.
func (c *Copernicus) IndexStats(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	payload, err := c.statisticsRequest(req)
	if err != nil {
		return nil, err
	}
	body, err := c.postJSON(ctx, "statistics", c.url, payload)
	if err != nil {
		return nil, err
	}

	var resp statisticsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal statistics: %w", err)
	}
	return aggregateIntervals(resp)
}

func aggregateIntervals(resp statisticsResponse) (*Result, error) {
	// B0..B3 follow the evalscript output order
	bands := []string{"B0", "B1", "B2", "B3"}
	series := make([][]float64, len(bands))

	var valid int
	for _, d := range resp.Data {
		if d.Error != nil {
			continue
		}
		ndvi, ok := d.Outputs.Indices.Bands["B0"]
		if !ok || ndvi.Stats.SampleCount <= ndvi.Stats.NoDataCount || math.IsNaN(float64(ndvi.Stats.Mean)) {
			continue
		}
		valid++
		for i, b := range bands {
			v := float64(d.Outputs.Indices.Bands[b].Stats.Mean)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			series[i] = append(series[i], v)
		}
	}
	if valid == 0 {
		return nil, ErrNoImagery
	}

	medians := make([]float64, len(bands))
	for i, values := range series {
		if len(values) == 0 {
			continue
		}
		m, err := stats.Median(values)
		if err != nil {
			return nil, fmt.Errorf("median %s: %w", bands[i], err)
		}
		medians[i] = m
	}

	log.Printf("copernicus: %d valid intervals of %d, NDVI %.4f", valid, len(resp.Data), medians[0])
	return &Result{
		Indices: models.IndexStats{
			NDVI: medians[0],
			EVI:  medians[1],
			LAI:  medians[2],
			NBR:  medians[3],
		},
		ImageCount: valid,
	}, nil
}
