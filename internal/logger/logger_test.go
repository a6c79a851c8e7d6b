package logger_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TRA3H/hunter/internal/logger"
)

func TestNew(t *testing.T) {
	for _, json := range []bool{true, false} {
		l, err := logger.New(json, true)
		require.NoError(t, err)
		assert.NotNil(t, l)
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in    string
		limit int
		want  string
	}{
		{"short", 10, "short"},
		{"  padded  ", 10, "padded"},
		{"abcdef", 3, "abc"},
		{"héllo wörld", 5, "héllo"},
		{"anything", 0, ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, logger.Truncate(c.in, c.limit), "Truncate(%q, %d)", c.in, c.limit)
	}

	long := strings.Repeat("x", 600)
	assert.Len(t, logger.Truncate(long, 500), 500)
}
