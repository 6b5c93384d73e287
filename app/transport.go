package app

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// NewTransport is shared by every outbound HTTP client.
func NewTransport(log *zap.Logger) http.RoundTripper {
	return &transport{http.DefaultTransport, log}
}

type transport struct {
	base http.RoundTripper
	log  *zap.Logger
}

func (tpt *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := tpt.base.RoundTrip(req)
	if err != nil {
		tpt.log.Sugar().Warnw("Outbound request failed", "method", req.Method, "host", req.URL.Host, "err", err)
		return resp, err
	}
	tpt.log.Sugar().Debugw("Outbound request",
		"method", req.Method, "host", req.URL.Host, "path", req.URL.Path,
		"status", resp.StatusCode, "elapsed_msecs", time.Since(start).Milliseconds())
	return resp, nil
}
