package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-relay/internal/utils"
)

type ClientConfig struct {
	Name            string
	Timeout         time.Duration
	InitialInterval time.Duration
	RetryMaxElapsed time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration

	BreakerMaxFailures int
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration
}

// StatusError is a response the upstream answered with a retryable status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

// Client retries transport errors and 5xx/429 answers with exponential
// backoff. Every attempt goes through a circuit breaker; while it is open
// calls fail fast with utils.ErrServiceUnavailable.
type Client struct {
	http *http.Client
	cb   *gobreaker.CircuitBreaker
	conf ClientConfig
}

func NewClient(conf ClientConfig, logger *zap.Logger) *Client {
	tr := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:    conf.MaxIdleConns,
		IdleConnTimeout: conf.IdleConnTimeout,
	}
	st := gobreaker.Settings{
		Name:        conf.Name,
		MaxRequests: 1,
		Interval:    conf.BreakerInterval,
		Timeout:     conf.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(conf.BreakerMaxFailures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &Client{
		http: &http.Client{Transport: tr, Timeout: conf.Timeout},
		cb:   gobreaker.NewCircuitBreaker(st),
		conf: conf,
	}
}

// Do sends the request built by newReq, rebuilding it for every attempt so
// bodies can be replayed. Non-retryable answers (2xx-4xx except 429) are
// returned as is; the caller closes the body.
func (c *Client) Do(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	var resp *http.Response
	operation := func() error {
		req, err := newReq(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		out, err := c.cb.Execute(func() (any, error) {
			r, err := c.http.Do(req)
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				body, _ := io.ReadAll(io.LimitReader(r.Body, 512))
				_ = r.Body.Close()
				return nil, &StatusError{StatusCode: r.StatusCode, Body: string(body)}
			}
			return r, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(fmt.Errorf("%w: %v", utils.ErrServiceUnavailable, err))
			}
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		resp = out.(*http.Response)
		return nil
	}

	b := backoff.NewExponentialBackOff()
	if c.conf.InitialInterval > 0 {
		b.InitialInterval = c.conf.InitialInterval
	}
	b.MaxElapsedTime = c.conf.RetryMaxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return resp, nil
}
