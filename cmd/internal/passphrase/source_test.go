package passphrase

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSource(env map[string]string, prompt func(string) (string, error)) *Source {
	s := NewSource("TIPLEDGER_KEY_PASS", "operator keystore")
	s.lookup = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	s.prompt = prompt
	return s
}

func TestSourcePrefersEnvironment(t *testing.T) {
	prompted := false
	s := newTestSource(map[string]string{"TIPLEDGER_KEY_PASS": "hunter2"}, func(string) (string, error) {
		prompted = true
		return "", nil
	})
	v, err := s.Get()
	require.NoError(t, err)
	require.Equal(t, "hunter2", v)
	require.False(t, prompted)
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	s := newTestSource(map[string]string{"TIPLEDGER_KEY_PASS": "  "}, nil)
	_, err := s.Get()
	require.ErrorContains(t, err, "set but empty")
}

func TestSourcePromptsOnceAndCaches(t *testing.T) {
	calls := 0
	s := newTestSource(nil, func(label string) (string, error) {
		calls++
		require.Equal(t, "operator keystore", label)
		return "s3cret", nil
	})
	for i := 0; i < 3; i++ {
		v, err := s.Get()
		require.NoError(t, err)
		require.Equal(t, "s3cret", v)
	}
	require.Equal(t, 1, calls)
}

func TestSourceReportsMissingTerminal(t *testing.T) {
	s := newTestSource(nil, func(string) (string, error) { return "", errNoTerminal })
	_, err := s.Get()
	require.ErrorIs(t, err, errNoTerminal)
	require.ErrorContains(t, err, "TIPLEDGER_KEY_PASS")

	blank := newTestSource(nil, func(string) (string, error) { return " ", nil })
	_, err = blank.Get()
	require.Error(t, err)
	require.False(t, errors.Is(err, errNoTerminal))
}
