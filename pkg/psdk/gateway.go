package psdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yfschool/portal/pkg/pauth"
	"github.com/yfschool/portal/pkg/psdk/perr"
)

// Response is a successful (2xx) reply, passed through unchanged.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if r == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

type requestOptions struct {
	token    string
	override bool
	noAuth   bool
	query    url.Values
	header   http.Header
}

// RequestOption customizes a single gateway request.
type RequestOption func(*requestOptions)

// WithAccessToken sends tok instead of the stored credential. Such requests
// are never refreshed or retried.
func WithAccessToken(tok string) RequestOption {
	return func(o *requestOptions) {
		o.token = tok
		o.override = true
	}
}

// WithoutAuth sends the request with no Authorization header.
func WithoutAuth() RequestOption {
	return func(o *requestOptions) { o.noAuth = true }
}

// WithQuery appends query parameters to the resource.
func WithQuery(q url.Values) RequestOption {
	return func(o *requestOptions) {
		if o.query == nil {
			o.query = url.Values{}
		}
		for k, vs := range q {
			o.query[k] = append(o.query[k], vs...)
		}
	}
}

func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.header == nil {
			o.header = http.Header{}
		}
		o.header.Add(key, value)
	}
}

type refresher interface {
	Refresh(ctx context.Context, stale string) (Credential, error)
}

// Gateway is the single path from the application to the portal API. It
// attaches the stored credential, and when the server answers 401 it has the
// coordinator renew the credential and re-issues the request exactly once.
//
// The gateway reads the session but never writes it; its only side effect on
// the session is the expiry hook after a retried request is rejected again.
type Gateway struct {
	baseURL   *url.URL
	http      *http.Client
	session   *Session
	refresher refresher
	expire    expireFunc
	skew      time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// Get issues a GET for resource.
func (g *Gateway) Get(ctx context.Context, resource string, opts ...RequestOption) (*Response, error) {
	return g.Do(ctx, http.MethodGet, resource, nil, opts...)
}

func (g *Gateway) Post(ctx context.Context, resource string, body any, opts ...RequestOption) (*Response, error) {
	return g.Do(ctx, http.MethodPost, resource, body, opts...)
}

func (g *Gateway) Put(ctx context.Context, resource string, body any, opts ...RequestOption) (*Response, error) {
	return g.Do(ctx, http.MethodPut, resource, body, opts...)
}

func (g *Gateway) Delete(ctx context.Context, resource string, opts ...RequestOption) (*Response, error) {
	return g.Do(ctx, http.MethodDelete, resource, nil, opts...)
}

// Do sends method to resource (relative to the base URL) with body encoded
// as JSON. Non-2xx replies come back as a CodeHTTP error carrying
// *perr.HTTPError; a 401 that survives the refresh comes back as
// CodeSessionExpired and ends the session.
func (g *Gateway) Do(ctx context.Context, method, resource string, body any, opts ...RequestOption) (*Response, error) {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	method = strings.ToUpper(method)
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return nil, perr.Newf(perr.CodeInvalidRequest, "unsupported method %q", method)
	}

	target, err := g.resolve(resource, o.query)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, perr.New(perr.CodeInvalidRequest, fmt.Errorf("encoding request body: %w", err))
		}
	}

	req := outgoing{method: method, target: target, payload: payload, header: o.header}

	if o.noAuth || o.override {
		return g.send(ctx, req, o.token, 1)
	}

	cred, epoch := g.session.current()
	if cred.IsZero() {
		return nil, perr.Newf(perr.CodeSessionExpired, "not logged in")
	}

	token := cred.AccessToken
	if token == "" || (g.skew > 0 && pauth.IsTokenExpired(token, g.skew, g.now())) {
		fresh, err := g.refresher.Refresh(ctx, token)
		if err != nil {
			return nil, refreshFailed(err)
		}
		token = fresh.AccessToken
	}

	resp, err := g.send(ctx, req, token, 1)
	if perr.StatusCode(err) != http.StatusUnauthorized {
		return resp, err
	}

	fresh, rerr := g.refresher.Refresh(ctx, token)
	if rerr != nil {
		return nil, refreshFailed(rerr)
	}
	if g.session.Epoch() != epoch {
		return nil, perr.Newf(perr.CodeSessionExpired, "session changed while %s %s was in flight", method, resource)
	}

	resp, err = g.send(ctx, req, fresh.AccessToken, 2)
	if perr.StatusCode(err) == http.StatusUnauthorized {
		err = perr.New(perr.CodeSessionExpired, err)
		g.expire(ctx, epoch, err)
		return nil, err
	}
	return resp, err
}

type outgoing struct {
	method  string
	target  string
	payload []byte
	header  http.Header
}

func (g *Gateway) resolve(resource string, query url.Values) (string, error) {
	ref, err := url.Parse(strings.TrimLeft(resource, "/"))
	if err != nil {
		return "", perr.New(perr.CodeInvalidRequest, fmt.Errorf("parsing resource %q: %w", resource, err))
	}
	if ref.IsAbs() || ref.Host != "" {
		return "", perr.Newf(perr.CodeInvalidRequest, "resource %q must be relative to the base URL", resource)
	}
	u := g.baseURL.ResolveReference(ref)
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			q[k] = append(q[k], vs...)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (g *Gateway) send(ctx context.Context, out outgoing, token string, attempt int) (*Response, error) {
	var body io.Reader
	if out.payload != nil {
		body = bytes.NewReader(out.payload)
	}
	req, err := http.NewRequestWithContext(ctx, out.method, out.target, body)
	if err != nil {
		return nil, perr.New(perr.CodeInvalidRequest, err)
	}
	req.Header.Set("Accept", "application/json")
	if out.payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range out.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := g.http.Do(req)
	if err != nil {
		return nil, perr.New(perr.CodeTransport, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, perr.New(perr.CodeTransport, fmt.Errorf("reading response body: %w", err))
	}

	g.logger.Debug("api request", "method", out.method, "url", out.target, "status", res.StatusCode, "attempt", attempt)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, perr.New(perr.CodeHTTP, &perr.HTTPError{
			Status: res.StatusCode,
			Detail: extractDetail(data),
			Body:   data,
		})
	}
	return &Response{StatusCode: res.StatusCode, Header: res.Header, Body: data}, nil
}

// refreshFailed maps a coordinator error onto what a gateway caller sees.
// Refresh codes stay reachable through the chain.
func refreshFailed(err error) error {
	var pe *perr.Error
	if errors.As(err, &pe) {
		if pe.Code == perr.CodeSessionExpired {
			return err
		}
		return perr.New(perr.CodeSessionExpired, err)
	}
	return perr.New(perr.CodeTransport, err)
}

func extractDetail(body []byte) string {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}
	for _, key := range []string{"detail", "message", "error", "title"} {
		if s, ok := fields[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
