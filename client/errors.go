package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrNotLoggedIn is returned by Restore when no session is stored.
var ErrNotLoggedIn = errors.New("not logged in")

// APIError is a non-2xx response of the API.
// Message holds `{"error": msg}` bodies, Fields the `{field: msg}` ones.
type APIError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%d: %s", e.Status, e.Message)
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return fmt.Sprintf("%d: %s", e.Status, strings.Join(parts, "; "))
}

func newAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(data) == 0 {
		return apiErr
	}
	var payload map[string]interface{}
	if err = json.Unmarshal(data, &payload); err != nil {
		if msg := strings.TrimSpace(string(data)); msg != "" {
			apiErr.Message = msg
		}
		return apiErr
	}

	if msg, ok := payload["error"].(string); ok && len(payload) == 1 {
		apiErr.Message = msg
		return apiErr
	}
	if msg, ok := payload["message"].(string); ok && len(payload) == 1 {
		apiErr.Message = msg
		return apiErr
	}
	apiErr.Fields = make(map[string]string, len(payload))
	for k, v := range payload {
		if s, ok := v.(string); ok {
			apiErr.Fields[k] = s
		} else {
			apiErr.Fields[k] = fmt.Sprint(v)
		}
	}
	return apiErr
}
