package session

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// Transport is an http.RoundTripper that authorizes requests with the
// Coordinator's access token and replays a request once after a 401.
type Transport struct {
	Session *Coordinator
	Base    http.RoundTripper // defaults to http.DefaultTransport
}

var _ http.RoundTripper = (*Transport)(nil)

// attempt is one logical request; retried is set once it has been replayed.
type attempt struct {
	ctx     context.Context
	req     *http.Request
	token   string // access token the last send carried
	retried bool
}

func newAttempt(req *http.Request) (*attempt, error) {
	ctx := req.Context()
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		data, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, errors.Wrap(err, "buffering request body")
		}
		req = req.Clone(ctx)
		req.Body = io.NopCloser(bytes.NewReader(data))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		}
	}
	return &attempt{ctx: ctx, req: req}, nil
}

// replay prepares the request to be sent again with token.
func (at *attempt) replay(token string) error {
	req := at.req.Clone(at.ctx)
	if at.req.GetBody != nil {
		body, err := at.req.GetBody()
		if err != nil {
			return errors.Wrap(err, "rewinding request body")
		}
		req.Body = body
	}
	setBearer(req, token)
	at.req = req
	at.token = token
	at.retried = true
	return nil
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	at, err := newAttempt(req)
	if err != nil {
		return nil, err
	}

	for {
		resp, err := t.send(at)
		if err != nil || resp.StatusCode != http.StatusUnauthorized || at.retried {
			return resp, err
		}
		drainAndClose(resp.Body)

		token, err := t.Session.Refresh(at.ctx, at.token)
		if err != nil {
			return nil, err
		}
		if err = at.replay(token); err != nil {
			return nil, err
		}
	}
}

func (t *Transport) send(at *attempt) (*http.Response, error) {
	out := at.req
	if !at.retried {
		out = t.Session.Attach(at.ctx, at.req)
		at.token = BearerToken(out)
	}
	return t.base().RoundTrip(out)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4<<10))
	_ = body.Close()
}
