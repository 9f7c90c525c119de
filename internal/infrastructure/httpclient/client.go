// Package httpclient builds the retrying HTTP client shared by outbound API adapters.
package httpclient

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

// Options tunes the retry policy. Zero values fall back to the defaults below.
type Options struct {
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// Timeout bounds one attempt, not the whole retry sequence.
	Timeout time.Duration
}

const (
	defaultRetryMax     = 3
	defaultRetryWaitMin = 500 * time.Millisecond
	defaultRetryWaitMax = 5 * time.Second
)

// New returns a retrying client that logs through the application logger.
// Retries cover connection errors, 429 and 5xx responses, except for requests
// whose context went through DialRetryOnly.
func New(opts Options, log *logger.Logger) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = opts.RetryMax
	if client.RetryMax <= 0 {
		client.RetryMax = defaultRetryMax
	}
	client.RetryWaitMin = opts.RetryWaitMin
	if client.RetryWaitMin <= 0 {
		client.RetryWaitMin = defaultRetryWaitMin
	}
	client.RetryWaitMax = opts.RetryWaitMax
	if client.RetryWaitMax <= 0 {
		client.RetryWaitMax = defaultRetryWaitMax
	}
	if opts.Timeout > 0 {
		client.HTTPClient.Timeout = opts.Timeout
	}
	client.Logger = nil
	if log != nil {
		client.Logger = adapter{log: log}
	}
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.CheckRetry = checkRetry
	return client
}

type dialRetryOnlyKey struct{}

// DialRetryOnly marks a request that is not safe to repeat once the server may
// have received it, such as an insert. It is retried only when the connection
// could not be established; any HTTP response, 5xx included, is final.
func DialRetryOnly(ctx context.Context) context.Context {
	return context.WithValue(ctx, dialRetryOnlyKey{}, true)
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if only, _ := ctx.Value(dialRetryOnlyKey{}).(bool); !only {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return err != nil && isDialError(err), nil
}

// isDialError reports whether the request failed before a connection existed.
func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// Standard wraps New for callers that expect *http.Client.
func Standard(opts Options, log *logger.Logger) *http.Client {
	return New(opts, log).StandardClient()
}

// adapter routes retryablehttp logs to the application logger.
// Retry chatter goes to debug so that warnings stay meaningful.
type adapter struct {
	log *logger.Logger
}

var _ retryablehttp.LeveledLogger = adapter{}

func (a adapter) Error(msg string, keysAndValues ...interface{}) {
	a.log.Error(msg, nil, keysAndValues...)
}

func (a adapter) Info(msg string, keysAndValues ...interface{}) {
	a.log.Debug(msg, keysAndValues...)
}

func (a adapter) Debug(msg string, keysAndValues ...interface{}) {
	a.log.Debug(msg, keysAndValues...)
}

func (a adapter) Warn(msg string, keysAndValues ...interface{}) {
	a.log.Warn(msg, keysAndValues...)
}
