package httpx

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type payloadContextKey struct{}

type logTransport struct {
	transport http.RoundTripper
}

func (t *logTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	logger := log.Ctx(ctx)

	ev := logger.Debug().Str("method", req.Method).Str("url", redact(req))
	if payload, ok := ctx.Value(payloadContextKey{}).([]byte); ok && len(payload) > 0 {
		ev = ev.Int("payload_bytes", len(payload))
	}
	ev.Msg("HTTP outbound request")

	start := time.Now()
	resp, err := t.transport.RoundTrip(req)
	if err != nil {
		logger.Debug().Err(err).Dur("elapsed", time.Since(start)).Msg("HTTP outbound request failed")
		return nil, err
	}
	logger.Debug().Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("HTTP outbound response")
	return resp, nil
}

// redact drops the query string, which may carry keys.
func redact(req *http.Request) string {
	u := *req.URL
	u.RawQuery = ""
	return u.String()
}

// WithRequestLogging logs method, URL and status of every outbound call at debug.
func WithRequestLogging() Option {
	return WithTransport(func(rt http.RoundTripper) http.RoundTripper {
		return &logTransport{transport: rt}
	})
}
