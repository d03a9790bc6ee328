package behavior

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGuard(t *testing.T) {
	env := map[string]bool{"a": true, "b": false, "c": true}
	lookup := func(name string) (bool, error) { return env[name], nil }

	tests := []struct {
		src  string
		want bool
	}{
		{"a", true},
		{"b", false},
		{"!b", true},
		{"a & b", false},
		{"a | b", true},
		{"a & !b", true},
		{"!(a & c)", false},
		{"b | a & c", true},
		{"(b | a) & !c", false},
		{"  a&c  ", true},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			expr, err := parseGuard(tt.src)
			require.NoError(t, err)
			got, err := expr.eval(lookup)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseGuard_Empty(t *testing.T) {
	expr, err := parseGuard("  ")
	require.NoError(t, err)
	assert.Nil(t, expr)
}

func TestParseGuard_Errors(t *testing.T) {
	for _, src := range []string{"a &", "(a", "a b", "!", "&a"} {
		_, err := parseGuard(src)
		assert.Error(t, err, src)
	}
}

func TestParseGuard_Names(t *testing.T) {
	expr, err := parseGuard("x & !(y | x) | z")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, expr.names(nil))
}

func TestGuardAnd_ShortCircuitsOnError(t *testing.T) {
	expr, err := parseGuard("a & b")
	require.NoError(t, err)
	calls := 0
	_, err = expr.eval(func(string) (bool, error) {
		calls++
		return false, errors.New("fail")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
