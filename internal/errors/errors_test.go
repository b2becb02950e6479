package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	err := New(ErrConfig, "Config is broken", "Fix the config")

	assert.Equal(t, ErrConfig, err.Code)
	assert.Contains(t, err.Error(), "✗ Config is broken")
	assert.Contains(t, err.Error(), "Fix the config")
}

func TestWrapWithCode(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapWithCode(cause, ErrSSH, "Couldn't reach host", "Check the network")

	assert.Equal(t, ErrSSH, err.Code)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Contains(t, err.Error(), "Check the network")
	assert.ErrorIs(t, err, cause)
}

func TestWrapDefaultsToSSH(t *testing.T) {
	err := Wrap(errors.New("boom"), "Something SSH-ish failed")
	assert.Equal(t, ErrSSH, err.Code)
}

func TestIsCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
		want bool
	}{
		{"nil error", nil, ErrConfig, false},
		{"matching code", New(ErrInstance, "no such instance", ""), ErrInstance, true},
		{"mismatched code", New(ErrTask, "task failed", ""), ErrConfig, false},
		{"plain error", errors.New("plain"), ErrExec, false},
		{"wrapped structured error", fmt.Errorf("outer: %w", New(ErrTask, "inner", "")), ErrTask, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCode(tt.err, tt.code))
		})
	}
}
