// Package nodefn provides ready-made catalog.NodeFn constructors for the
// node-function shapes graphs commonly need. HTTP wraps a hardened
// *http.Client (TLS floor, bounded idle connections, redirect cap) so
// individual graphs don't each assemble their own.
package nodefn

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/requestid"
	"github.com/ErlanBelekov/journey/internal/value"
)

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 5 * time.Minute,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("stopped after 10 redirects")
			}
			return nil
		},
	}
}

// HTTPConfig parameterizes an HTTP-calling node function. URLNode and
// BodyNode, when set, name upstream nodes whose string value overrides
// the static URL/Body for this invocation — the graph's own inputs drive
// the request rather than a fixed endpoint.
type HTTPConfig struct {
	Method  string
	URL     string
	URLNode string
	Body    string
	BodyNode string
	Headers map[string]string
}

// HTTP builds a catalog.NodeFn that issues one HTTP request per
// invocation and reports {ok, response_body} on any 2xx status, {error,
// reason} otherwise — the engine's node-function contract.
func HTTP(cfg HTTPConfig) func(ctx context.Context, inputs map[string]value.Value) domain.Outcome {
	client := newHTTPClient()

	return func(ctx context.Context, inputs map[string]value.Value) domain.Outcome {
		url := cfg.URL
		if cfg.URLNode != "" {
			if v, ok := inputs[cfg.URLNode]; ok && !v.IsNull() {
				url = v.StringValue()
			}
		}
		body := cfg.Body
		if cfg.BodyNode != "" {
			if v, ok := inputs[cfg.BodyNode]; ok && !v.IsNull() {
				body = v.StringValue()
			}
		}

		method := cfg.Method
		if method == "" {
			method = http.MethodGet
		}

		req, err := http.NewRequestWithContext(ctx, method, url, strings.NewReader(body))
		if err != nil {
			return domain.Errored(fmt.Errorf("build request: %w", err))
		}
		for k, v := range cfg.Headers {
			req.Header.Set(k, v)
		}

		reqID := requestid.New()
		req.Header.Set("X-Request-ID", reqID)
		ctx = requestid.WithRequestID(ctx, reqID)
		req = req.WithContext(ctx)

		resp, err := client.Do(req)
		if err != nil {
			return domain.Errored(fmt.Errorf("do request: %w", err))
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return domain.Errored(fmt.Errorf("read response: %w", err))
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return domain.Errored(fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, respBody))
		}

		return domain.Ok(value.String(string(respBody)))
	}
}
