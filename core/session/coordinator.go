// Package session keeps the access/refresh token pair of a logged in user and
// recovers from access token expiry on behalf of every outgoing request.
package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/aits/core"
)

const DefaultRefreshTimeout = 15 * time.Second

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (string, error)
}

type RefresherFunc func(ctx context.Context, refreshToken string) (string, error)

func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (string, error) {
	return f(ctx, refreshToken)
}

type Options struct {
	Refresher      Refresher     // required
	Store          Store         // defaults to a MemoryStore
	RefreshTimeout time.Duration // defaults to DefaultRefreshTimeout
	Logger         core.Logger
	Observer       Observer
	// OnExpired is called once per failed refresh, after the tokens were cleared.
	OnExpired func(err error)
}

// Coordinator owns the TokenPair of a session. At most one refresh is in
// flight at any time; requests that hit a 401 meanwhile wait for its outcome.
type Coordinator struct {
	store     Store
	refresher Refresher
	timeout   time.Duration
	logger    core.Logger
	observer  Observer
	onExpired func(error)

	mu         sync.Mutex
	gen        uint64 // bumped by Start and Logout
	refreshing bool
	queue      pendingQueue
	expired    *ExpiredError // failure that ended the current generation, if any
}

func NewCoordinator(opts Options) (*Coordinator, error) {
	if err := vala.BeginValidation().Validate(
		vala.IsNotNil(opts.Refresher, "Refresher"),
	).Check(); err != nil {
		return nil, errors.Wrap(err, "validating session options")
	}

	c := &Coordinator{
		store:     opts.Store,
		refresher: opts.Refresher,
		timeout:   opts.RefreshTimeout,
		logger:    opts.Logger,
		observer:  opts.Observer,
		onExpired: opts.OnExpired,
	}
	if c.store == nil {
		c.store = NewMemoryStore()
	}
	if c.timeout <= 0 {
		c.timeout = DefaultRefreshTimeout
	}
	if c.logger == nil {
		c.logger = nopLogger{}
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	return c, nil
}

// Start records the TokenPair obtained from a successful login.
// A refresh still in flight for a previous session will not overwrite it.
func (c *Coordinator) Start(ctx context.Context, pair TokenPair) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.expired = nil
	return errors.Wrap(c.store.Save(ctx, pair), "saving tokens")
}

// Logout tears the session down.
func (c *Coordinator) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.expired = nil
	return errors.Wrap(c.store.Clear(ctx), "clearing tokens")
}

// Tokens returns the stored TokenPair.
func (c *Coordinator) Tokens(ctx context.Context) (TokenPair, error) {
	return c.store.Load(ctx)
}

// Attach returns a copy of req carrying the stored access token, if any.
// Storage failures are logged and the request goes out without credentials.
func (c *Coordinator) Attach(ctx context.Context, req *http.Request) *http.Request {
	out := req.Clone(ctx)
	out.Header.Del("Authorization")

	pair, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Warn("session: loading tokens", errors.Wrap(err, "attaching access token"))
		return out
	}
	if pair.Access != "" {
		setBearer(out, pair.Access)
	}
	return out
}

// Refresh is called for a request rejected with a 401 that was sent with the
// stale access token. It returns the access token to replay the request with.
//
// If a refresh is in flight the call waits for it. If the stored access token
// no longer matches stale, a refresh already happened and its token is returned.
// With nothing stored there is no session to recover and no refresh is made.
// Otherwise this call performs the refresh; on failure the tokens are cleared
// and every caller of the episode gets the same *ExpiredError.
func (c *Coordinator) Refresh(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	if c.refreshing {
		w := c.queue.enqueue()
		c.mu.Unlock()
		c.observer.RequestQueued()
		return c.await(ctx, w)
	}

	pair, err := c.store.Load(ctx)
	if err == nil {
		switch {
		case pair.Access != "" && pair.Access != stale:
			c.mu.Unlock()
			return pair.Access, nil
		case pair.IsZero():
			expErr := c.expired
			c.mu.Unlock()
			if expErr == nil || stale == "" {
				expErr = &ExpiredError{Err: ErrNoRefreshToken}
			}
			return "", expErr
		}
	}
	gen := c.gen
	c.refreshing = true
	c.mu.Unlock()

	c.observer.RefreshStarted()
	start := time.Now()
	token, err := c.refresh(ctx, pair, err)

	c.mu.Lock()
	expired := false
	switch {
	case gen != c.gen:
		// logged out or in again meanwhile: the new session wins
		token, err = c.current(ctx)
	case err != nil:
		err = c.expire(ctx, err)
		expired = true
	default:
		pair.Access = token
		if svErr := c.store.Save(context.WithoutCancel(ctx), pair); svErr != nil {
			err = c.expire(ctx, errors.Wrap(svErr, "saving refreshed token"))
			token, expired = "", true
		}
	}
	waiters := c.queue.drain()
	c.refreshing = false
	c.mu.Unlock()

	c.observer.RefreshFinished(err, time.Since(start))
	settle(waiters, token, err)

	if err != nil {
		if expired {
			c.logger.Info("session: expired", err)
			if c.onExpired != nil {
				c.onExpired(err)
			}
		}
		return "", err
	}
	return token, nil
}

// expire clears the tokens after a failed refresh; c.mu must be held.
func (c *Coordinator) expire(ctx context.Context, cause error) error {
	expErr := &ExpiredError{Err: cause}
	if clrErr := c.store.Clear(context.WithoutCancel(ctx)); clrErr != nil {
		c.logger.Error("session: clearing tokens", errors.Wrap(clrErr, "expiring session"))
	}
	c.expired = expErr
	return expErr
}

// current returns the access token of the session started while a refresh
// was in flight; c.mu must be held.
func (c *Coordinator) current(ctx context.Context) (string, error) {
	pair, err := c.store.Load(context.WithoutCancel(ctx))
	if err != nil {
		return "", errors.Wrap(err, "loading tokens")
	}
	if pair.Access == "" {
		return "", &ExpiredError{Err: ErrLoggedOut}
	}
	return pair.Access, nil
}

// await waits for the in-flight refresh; a caller giving up leaves the queue.
func (c *Coordinator) await(ctx context.Context, w *waiter) (string, error) {
	token, err := w.wait(ctx)
	if err != nil && err == ctx.Err() {
		c.mu.Lock()
		c.queue.remove(w)
		c.mu.Unlock()
	}
	return token, err
}

func (c *Coordinator) refresh(ctx context.Context, pair TokenPair, loadErr error) (string, error) {
	if loadErr != nil {
		return "", errors.Wrap(loadErr, "loading tokens")
	}
	if pair.Refresh == "" {
		return "", ErrNoRefreshToken
	}

	// the refresh outlives the request that triggered it: other requests may be queued on it
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		access, err := c.refresher.Refresh(rctx, pair.Refresh)
		done <- outcome{token: access, err: err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-rctx.Done():
		return "", ErrRefreshTimeout
	}
	if res.err != nil {
		if errors.Is(rctx.Err(), context.DeadlineExceeded) {
			return "", ErrRefreshTimeout
		}
		return "", res.err
	}
	if res.token == "" {
		return "", ErrEmptyAccessToken
	}
	return res.token, nil
}

// Refreshing reports whether a refresh is in flight.
func (c *Coordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

// Pending returns the number of requests waiting on the in-flight refresh.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.len()
}
