package prober

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeTimeout Outcome = "timeout"
)

// Result of a single probe. A probe never returns an error: DNS and
// connection failures are failure outcomes, applying the result is the
// caller's business.
type Result struct {
	Outcome    Outcome
	Latency    time.Duration
	StatusCode int
}

func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

type Prober interface {
	Probe(ctx context.Context, address string, healthPath string) Result
}

type HTTPProber struct {
	client  *http.Client
	timeout time.Duration
	retries uint
}

func NewHTTPProber(timeout time.Duration, retries uint) *HTTPProber {
	if timeout == 0 {
		timeout = time.Second
	}
	return &HTTPProber{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DisableKeepAlives: true,
			},
		},
		timeout: timeout,
		retries: retries,
	}
}

func (p *HTTPProber) Probe(ctx context.Context, address string, healthPath string) Result {
	target := url.URL{
		Scheme: "http",
		Host:   address,
		Path:   healthPath,
	}
	started := time.Now()
	code, err := p.doWithRetries(ctx, target.String())
	latency := time.Since(started)

	if err != nil {
		log.Debug().Err(err).Msgf("probe failed for %s", address)
		return Result{
			Outcome: classify(err),
			Latency: latency,
		}
	}
	if code/100 != 2 {
		log.Debug().Msgf("probe %s: invalid status code = %d", address, code)
		return Result{
			Outcome:    OutcomeFailure,
			Latency:    latency,
			StatusCode: code,
		}
	}
	return Result{
		Outcome:    OutcomeSuccess,
		Latency:    latency,
		StatusCode: code,
	}
}

func (p *HTTPProber) doWithRetries(ctx context.Context, target string) (int, error) {
	return retry.DoWithData(
		func() (int, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
			if err != nil {
				return 0, fmt.Errorf("failed to form probe request: %w", err)
			}
			resp, err := p.client.Do(req)
			if err != nil {
				return 0, err
			}
			_ = resp.Body.Close()
			return resp.StatusCode, nil
		},
		retry.Attempts(p.retries+1),
		retry.Delay(10*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
}

func classify(err error) Outcome {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, os.ErrDeadlineExceeded):
		return OutcomeTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return OutcomeTimeout
	}
	return OutcomeFailure
}
