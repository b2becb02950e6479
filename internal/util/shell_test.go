package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShellQuote(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain word", "hello", "'hello'"},
		{"with spaces", "hello world", "'hello world'"},
		{"single quote", "it's", "'it'\\''s'"},
		{"empty string", "", "''"},
		{"shell metacharacters", "$(rm -rf /)", "'$(rm -rf /)'"},
		{"double quotes pass through", `say "hi"`, `'say "hi"'`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShellQuote(tt.input))
		})
	}
}

func TestShellQuoteAll(t *testing.T) {
	got := ShellQuoteAll([]string{"a", "b c", "d'e"})
	assert.Equal(t, "'a' 'b c' 'd'\\''e'", got)
}

func TestShellQuotePreserveTilde(t *testing.T) {
	assert.Equal(t, "~/'src/app'", ShellQuotePreserveTilde("~/src/app"))
	assert.Equal(t, "~", ShellQuotePreserveTilde("~"))
	assert.Equal(t, "'/opt/app'", ShellQuotePreserveTilde("/opt/app"))
}
