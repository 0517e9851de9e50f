// Package imagery fetches Sentinel-2 vegetation index statistics for an
// area of interest from a remote-sensing platform.
package imagery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lox/afolu/internal/aoi"
	"github.com/lox/afolu/internal/models"
	"github.com/lox/afolu/internal/store"
)

var (
	// ErrMissingCredentials means the provider has no usable credentials.
	ErrMissingCredentials = errors.New("imagery credentials not configured")
	// ErrNoImagery means no scene matched the area, dates and cloud filter.
	ErrNoImagery = errors.New("no Sentinel-2 imagery matches the request")
)

type Request struct {
	AOI        *aoi.AOI
	Start      time.Time
	End        time.Time
	CloudCover float64
}

func (r Request) Validate() error {
	if r.AOI == nil {
		return errors.New("area of interest is required")
	}
	if !r.End.After(r.Start) {
		return fmt.Errorf("end date %s must be after start date %s", r.End.Format(time.DateOnly), r.Start.Format(time.DateOnly))
	}
	if r.CloudCover < 0 || r.CloudCover > 100 {
		return fmt.Errorf("cloud cover %.1f out of range 0-100", r.CloudCover)
	}
	return nil
}

// Result holds AOI-mean index values over the composite.
type Result struct {
	Indices    models.IndexStats
	ImageCount int
}

type Provider interface {
	Name() string
	IndexStats(ctx context.Context, req Request) (*Result, error)
}

// ChangeDetector is implemented by providers that can compare annual
// land-cover maps.
type ChangeDetector interface {
	LandCoverChange(ctx context.Context, area *aoi.AOI, fromYear, toYear int) (*models.LandCoverChange, error)
}

// Recorder audits provider calls. *store.Store satisfies it.
type Recorder interface {
	StartImageryRun(provider, endpoint string) (*store.ImageryRun, error)
	CompleteImageryRun(run *store.ImageryRun) error
	StoreRawPayload(runID *int64, provider, endpoint string, payload []byte) (int64, error)
}

// StatusError is a non-success HTTP response from a provider.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, body)
}
