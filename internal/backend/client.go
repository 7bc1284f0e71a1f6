// Package backend talks to the hosted data service: table reads and writes,
// remote procedures, password auth and realtime change feeds.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/valyala/fasthttp"
)

const (
	restPath     = "/rest/v1/"
	authPath     = "/auth/v1/"
	realtimePath = "/realtime/v1/websocket"

	mimeJSON   = "application/json"
	mimeObject = "application/vnd.pgrst.object+json"
)

// Options configure a Client.
type Options struct {
	URL     string        // service base url, e.g. https://xyz.example.co
	Key     string        // public (anon) api key
	Timeout time.Duration // per request
}

// Client is safe for concurrent use. WithSession returns a copy bound to a
// user's access token; without one requests run as the anonymous role.
type Client struct {
	base    string
	key     string
	timeout time.Duration
	token   string
	http    *fasthttp.Client
}

func New(opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(opts.URL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("invalid service url %q", opts.URL)
	}
	if opts.Key == "" {
		return nil, errors.New("service key is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:    u.String(),
		key:     opts.Key,
		timeout: timeout,
		http: &fasthttp.Client{
			Name:                     "wachat",
			NoDefaultUserAgentHeader: true,
			ReadTimeout:              timeout,
			WriteTimeout:             timeout,
		},
	}, nil
}

// WithSession returns a client that sends token as the bearer.
func (c *Client) WithSession(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// Token is the bearer in use, empty for the anonymous role.
func (c *Client) Token() string { return c.token }

type request struct {
	method string
	path   string
	query  url.Values
	body   interface{}
	accept string
	prefer []string
	bearer string
}

type response struct {
	status int
	body   []byte
	rng    string
}

func (c *Client) do(ctx context.Context, r request) (*response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	target := c.base + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}
	req.SetRequestURI(target)
	req.Header.SetMethod(r.method)
	req.Header.Set("apikey", c.key)
	bearer := r.bearer
	if bearer == "" {
		bearer = c.token
	}
	if bearer == "" {
		bearer = c.key
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	accept := r.accept
	if accept == "" {
		accept = mimeJSON
	}
	req.Header.Set("Accept", accept)
	if len(r.prefer) > 0 {
		req.Header.Set("Prefer", strings.Join(r.prefer, ","))
	}
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return nil, errors.Wrap(err, "encode request body")
		}
		req.Header.SetContentType(mimeJSON)
		req.SetBody(payload)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	jww.TRACE.Printf("[backend] %s %s", r.method, r.path)
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, errors.Wrapf(err, "%s %s", r.method, r.path)
	}

	out := &response{
		status: resp.StatusCode(),
		body:   append([]byte(nil), resp.Body()...),
		rng:    string(resp.Header.Peek("Content-Range")),
	}
	if out.status < 200 || out.status > 299 {
		se := decodeError(out.status, out.body)
		jww.DEBUG.Printf("[backend] %s %s: %d %s", r.method, r.path, out.status, se.Message)
		return nil, se
	}
	return out, nil
}

func decodeInto(body []byte, out interface{}) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(body, out), "decode response")
}

// Select reads rows from table into out, a pointer to a slice, or to a single
// row when q is Single or MaybeSingle.
func (c *Client) Select(ctx context.Context, table string, q Query, out interface{}) error {
	r := request{method: fasthttp.MethodGet, path: restPath + table, query: q.Values()}
	if q.IsSingle() {
		r.accept = mimeObject
	}
	if q.IsMaybeSingle() {
		// zero rows must not be an error, so read a list and pick the head
		var rows []json.RawMessage
		resp, err := c.do(ctx, r)
		if err != nil {
			return err
		}
		if err := decodeInto(resp.body, &rows); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return decodeInto(rows[0], out)
	}
	resp, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	return decodeInto(resp.body, out)
}

// Count returns the exact number of rows matching q without reading them.
func (c *Client) Count(ctx context.Context, table string, q Query) (int, error) {
	r := request{
		method: fasthttp.MethodHead,
		path:   restPath + table,
		query:  q.Values(),
		prefer: []string{"count=exact"},
	}
	resp, err := c.do(ctx, r)
	if err != nil {
		return 0, err
	}
	return parseContentRange(resp.rng)
}

// parseContentRange reads the total from "0-24/573" or "*/0".
func parseContentRange(v string) (int, error) {
	i := strings.LastIndexByte(v, '/')
	if i < 0 || i == len(v)-1 {
		return 0, errors.Errorf("malformed content range %q", v)
	}
	n, err := strconv.Atoi(v[i+1:])
	if err != nil {
		return 0, errors.Wrapf(err, "malformed content range %q", v)
	}
	return n, nil
}

// Insert adds row to table. When out is non-nil the stored row is decoded
// into it.
func (c *Client) Insert(ctx context.Context, table string, row interface{}, out interface{}) error {
	r := request{method: fasthttp.MethodPost, path: restPath + table, body: row}
	if out != nil {
		r.prefer = []string{"return=representation"}
		r.accept = mimeObject
	} else {
		r.prefer = []string{"return=minimal"}
	}
	resp, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	return decodeInto(resp.body, out)
}

// Upsert inserts row or merges it into the existing row with the same key.
func (c *Client) Upsert(ctx context.Context, table string, row interface{}) error {
	_, err := c.do(ctx, request{
		method: fasthttp.MethodPost,
		path:   restPath + table,
		body:   row,
		prefer: []string{"resolution=merge-duplicates", "return=minimal"},
	})
	return err
}

// Update applies patch to every row matching q.
func (c *Client) Update(ctx context.Context, table string, patch interface{}, q Query) error {
	_, err := c.do(ctx, request{
		method: fasthttp.MethodPatch,
		path:   restPath + table,
		query:  q.Values(),
		body:   patch,
		prefer: []string{"return=minimal"},
	})
	return err
}

// Delete removes every row matching q.
func (c *Client) Delete(ctx context.Context, table string, q Query) error {
	_, err := c.do(ctx, request{
		method: fasthttp.MethodDelete,
		path:   restPath + table,
		query:  q.Values(),
	})
	return err
}

// RPC calls the named server-side procedure. A scalar result decodes into a
// pointer of the matching Go type; a null result leaves out untouched.
func (c *Client) RPC(ctx context.Context, fn string, params interface{}, out interface{}) error {
	if params == nil {
		params = map[string]interface{}{}
	}
	resp, err := c.do(ctx, request{
		method: fasthttp.MethodPost,
		path:   restPath + "rpc/" + fn,
		body:   params,
	})
	if err != nil {
		return err
	}
	if bytes.Equal(bytes.TrimSpace(resp.body), []byte("null")) {
		return nil
	}
	return decodeInto(resp.body, out)
}
