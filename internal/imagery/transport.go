package imagery

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"

	"github.com/lox/afolu/internal/metrics"
	"github.com/lox/afolu/internal/store"
)

// caller posts JSON to a provider with retries, auditing and metrics.
type caller struct {
	client   *http.Client
	provider string
	recorder Recorder

	newBackOff func() backoff.BackOff
}

func defaultBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	return bo
}

func (c *caller) postJSON(ctx context.Context, endpoint, url string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", endpoint, err)
	}

	run := c.startRun(endpoint)
	start := time.Now()

	var body []byte
	var status, attempts int
	operation := func() error {
		attempts++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			var retrieveErr *oauth2.RetrieveError
			if ctx.Err() != nil || errors.As(err, &retrieveErr) {
				return backoff.Permanent(fmt.Errorf("%s: %w", endpoint, err))
			}
			return fmt.Errorf("%s: %w", endpoint, err)
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		if status == http.StatusTooManyRequests || status >= 500 {
			return &StatusError{StatusCode: status, Body: string(b)}
		}
		if status != http.StatusOK {
			return backoff.Permanent(&StatusError{StatusCode: status, Body: string(b)})
		}
		body = b
		return nil
	}

	newBackOff := c.newBackOff
	if newBackOff == nil {
		newBackOff = defaultBackOff
	}
	err = backoff.Retry(operation, backoff.WithContext(newBackOff(), ctx))

	metrics.ImageryLatency.WithLabelValues(c.provider, endpoint).Observe(time.Since(start).Seconds())
	statusLabel := strconv.Itoa(status)
	if status == 0 {
		statusLabel = "error"
	}
	metrics.ImageryCallsTotal.WithLabelValues(c.provider, endpoint, statusLabel).Inc()

	c.completeRun(run, status, attempts, body, err)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", c.provider, endpoint, err)
	}
	return body, nil
}

func (c *caller) startRun(endpoint string) *store.ImageryRun {
	if c.recorder == nil {
		return nil
	}
	run, err := c.recorder.StartImageryRun(c.provider, endpoint)
	if err != nil {
		log.Printf("imagery: start run %s/%s: %v", c.provider, endpoint, err)
		return nil
	}
	return run
}

func (c *caller) completeRun(run *store.ImageryRun, status, attempts int, body []byte, callErr error) {
	if c.recorder == nil || run == nil {
		return
	}
	if status != 0 {
		run.HTTPStatus = sql.NullInt64{Int64: int64(status), Valid: true}
	}
	run.Attempts = sql.NullInt64{Int64: int64(attempts), Valid: true}
	run.ResponseSizeBytes = sql.NullInt64{Int64: int64(len(body)), Valid: true}
	run.Success = callErr == nil
	if callErr != nil {
		run.ErrorMessage = sql.NullString{String: callErr.Error(), Valid: true}
	}
	if err := c.recorder.CompleteImageryRun(run); err != nil {
		log.Printf("imagery: complete run %d: %v", run.ID, err)
	}
	if callErr == nil && len(body) > 0 {
		if _, err := c.recorder.StoreRawPayload(&run.ID, run.Provider, run.Endpoint, body); err != nil {
			log.Printf("imagery: store raw payload: %v", err)
		}
	}
}
