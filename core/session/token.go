package session

import (
	"context"
	"net/http"
	"strings"
	"sync"
)

// TokenPair is the credential pair handed out by the backend on login.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func (tp TokenPair) IsZero() bool { return tp.Access == "" && tp.Refresh == "" }

// Store persists the TokenPair of a session.
// Load returns a zero TokenPair (and no error) when nothing is stored.
type Store interface {
	Load(ctx context.Context) (TokenPair, error)
	Save(ctx context.Context, pair TokenPair) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the TokenPair in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	pair TokenPair
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(pair ...TokenPair) *MemoryStore {
	s := new(MemoryStore)
	if len(pair) > 0 {
		s.pair = pair[0]
	}
	return s
}

func (s *MemoryStore) Load(context.Context) (TokenPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair, nil
}

func (s *MemoryStore) Save(_ context.Context, pair TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = pair
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = TokenPair{}
	return nil
}

const bearerPrefix = "Bearer "

// BearerToken returns the bearer credential carried by req, if any.
func BearerToken(req *http.Request) string {
	auth := req.Header.Get("Authorization")
	if len(auth) > len(bearerPrefix) && strings.EqualFold(auth[:len(bearerPrefix)], bearerPrefix) {
		return auth[len(bearerPrefix):]
	}
	return ""
}

func setBearer(req *http.Request, token string) {
	req.Header.Set("Authorization", bearerPrefix+token)
}
