// Package client is a typed client of the AITS REST API. Authorized calls go
// through a session.Coordinator which refreshes expired access tokens.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/aits/core"
	"github.com/trezcool/aits/core/session"
)

// Paths are the endpoints of the API, relative to the base URL.
type Paths struct {
	Login         string
	Register      string
	Refresh       string
	Me            string
	Users         string
	Issues        string
	Notifications string
}

func DefaultPaths() Paths {
	return Paths{
		Login:         "/login",
		Register:      "/register",
		Refresh:       "/token/refresh",
		Me:            "/users/me",
		Users:         "/users",
		Issues:        "/issues",
		Notifications: "/notifications",
	}
}

// merge fills the empty paths of p with the defaults.
func (p Paths) merge(def Paths) Paths {
	pick := func(s, d string) string {
		if s == "" {
			return d
		}
		return s
	}
	return Paths{
		Login:         pick(p.Login, def.Login),
		Register:      pick(p.Register, def.Register),
		Refresh:       pick(p.Refresh, def.Refresh),
		Me:            pick(p.Me, def.Me),
		Users:         pick(p.Users, def.Users),
		Issues:        pick(p.Issues, def.Issues),
		Notifications: pick(p.Notifications, def.Notifications),
	}
}

type options struct {
	httpClient     *http.Client
	store          session.Store
	refreshTimeout time.Duration
	logger         core.Logger
	observer       session.Observer
	onExpired      func(error)
	paths          Paths
}

type Option func(*options)

// WithHTTPClient sets the client used for every call; its Transport becomes
// the base transport of the session.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

func WithStore(store session.Store) Option {
	return func(o *options) { o.store = store }
}

func WithRefreshTimeout(d time.Duration) Option {
	return func(o *options) { o.refreshTimeout = d }
}

func WithLogger(logger core.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithObserver(observer session.Observer) Option {
	return func(o *options) { o.observer = observer }
}

// WithOnExpired sets the hook called once whenever the session expires.
func WithOnExpired(fn func(error)) Option {
	return func(o *options) { o.onExpired = fn }
}

// WithPaths overrides endpoint paths; empty fields keep their default.
func WithPaths(p Paths) Option {
	return func(o *options) { o.paths = p }
}

type Client struct {
	baseURL string
	paths   Paths
	plain   *http.Client // unauthenticated calls, never intercepted
	authed  *http.Client
	session *session.Coordinator
}

func New(baseURL string, opts ...Option) (*Client, error) {
	if err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(baseURL, "baseURL"),
	).Check(); err != nil {
		return nil, errors.Wrap(err, "validating client options")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, errors.Wrap(err, "parsing base URL")
	}

	o := options{httpClient: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		paths:   o.paths.merge(DefaultPaths()),
		plain:   o.httpClient,
	}

	coord, err := session.NewCoordinator(session.Options{
		Refresher:      c,
		Store:          o.store,
		RefreshTimeout: o.refreshTimeout,
		Logger:         o.logger,
		Observer:       o.observer,
		OnExpired:      o.onExpired,
	})
	if err != nil {
		return nil, err
	}
	c.session = coord

	authed := *o.httpClient
	authed.Transport = &session.Transport{Session: coord, Base: o.httpClient.Transport}
	c.authed = &authed
	return c, nil
}

// Session returns the coordinator owning the client's tokens.
func (c *Client) Session() *session.Coordinator { return c.session }

func (c *Client) url(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do sends a JSON request and decodes the JSON response into out, if not nil.
// Non-2xx responses are returned as *APIError.
func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, query url.Values, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encoding request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path, query), body)
	if err != nil {
		return errors.Wrap(err, "creating request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decoding response")
}
