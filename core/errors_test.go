package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	errTaken := errors.New("a user with this username already exists")

	tests := []struct {
		name       string
		err        error
		wantMsg    string
		wantFields map[string]string
	}{
		{name: "message only", err: NewValidationError(errors.New("cannot resolve a pending issue")), wantMsg: "cannot resolve a pending issue"},
		{
			name:       "fields",
			err:        NewValidationError(errTaken, FieldError{Field: "username", Error: errTaken.Error()}),
			wantMsg:    errTaken.Error(),
			wantFields: map[string]string{"username": errTaken.Error()},
		},
		{
			name:       "fields without message",
			err:        NewValidationError(nil, FieldError{Field: "refresh", Error: "this field is required"}),
			wantFields: map[string]string{"refresh": "this field is required"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var vErr *ValidationError
			if assert.True(t, errors.As(tt.err, &vErr)) {
				assert.Equal(t, tt.wantMsg, vErr.Error())
				assert.Equal(t, tt.wantFields, vErr.FieldMap())
			}
		})
	}

	assert.True(t, errors.Is(NewValidationError(errTaken), errTaken))
}
