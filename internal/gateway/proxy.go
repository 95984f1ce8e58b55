package gateway

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
)

// Proxy reverse-proxies requests to a service's running replicas, selected
// round-robin from a Registry. GET/HEAD/OPTIONS requests are retried on a
// second endpoint if the first returns >=500 or fails outright; other
// methods are not safe to retry and are forwarded at most once.
type Proxy struct {
	reg *Registry
	log *slog.Logger
}

// NewProxy builds a Proxy over reg.
func NewProxy(reg *Registry, log *slog.Logger) *Proxy {
	return &Proxy{reg: reg, log: log}
}

// ServeKey proxies r to one running replica of the service identified by
// key, rewriting the request path to stripPrefix-trimmed form.
func (p *Proxy) ServeKey(w http.ResponseWriter, r *http.Request, key, stripPrefix string) {
	idempotent := isIdempotent(r.Method)
	maxAttempts := 1
	if idempotent {
		maxAttempts = 2
	}

	var bodyCopy []byte
	if r.Body != nil {
		bodyCopy, _ = readAllLimited(r)
	}

	tried := make(map[string]bool)
	var last *captured

	for attempt := 0; attempt < maxAttempts; attempt++ {
		endpoint, ok := p.reg.Pick(key)
		if !ok || tried[endpoint] {
			break
		}
		tried[endpoint] = true

		res := p.forward(r, endpoint, stripPrefix, bodyCopy)
		last = res
		if res.err == nil && res.status < 500 {
			writeCaptured(w, res)
			return
		}
		p.reg.Eject(endpoint)
		p.log.Warn("gateway upstream failed, ejecting", "endpoint", endpoint, "status", res.status, "error", res.err)
		if !idempotent {
			break
		}
	}

	if last != nil && last.err == nil {
		writeCaptured(w, last)
		return
	}
	http.Error(w, "no healthy upstream available", http.StatusBadGateway)
}

type captured struct {
	status int
	header http.Header
	body   *bytes.Buffer
	err    error
}

type capturingWriter struct {
	status int
	header http.Header
	body   *bytes.Buffer
}

func (c *capturingWriter) Header() http.Header { return c.header }
func (c *capturingWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c.body.Write(b)
}
func (c *capturingWriter) WriteHeader(status int) { c.status = status }

func (p *Proxy) forward(r *http.Request, endpoint, stripPrefix string, bodyCopy []byte) *captured {
	target, err := url.Parse(endpoint)
	if err != nil {
		return &captured{err: err}
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Director = func(req *http.Request) {
		req.URL.Scheme = target.Scheme
		req.URL.Host = target.Host
		req.URL.Path = strings.TrimPrefix(req.URL.Path, stripPrefix)
		if req.URL.Path == "" {
			req.URL.Path = "/"
		}
		req.Host = target.Host
	}

	var proxyErr error
	proxy.ErrorHandler = func(_ http.ResponseWriter, _ *http.Request, err error) {
		proxyErr = err
	}

	cw := &capturingWriter{header: make(http.Header), body: &bytes.Buffer{}}
	clone := r.Clone(r.Context())
	if bodyCopy != nil {
		clone.Body = readCloserOf(bodyCopy)
		clone.ContentLength = int64(len(bodyCopy))
	}

	proxy.ServeHTTP(cw, clone)
	if proxyErr != nil {
		return &captured{err: proxyErr}
	}
	return &captured{status: cw.status, header: cw.header, body: cw.body}
}

func writeCaptured(w http.ResponseWriter, c *captured) {
	for k, vs := range c.header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(c.body.Bytes())
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
