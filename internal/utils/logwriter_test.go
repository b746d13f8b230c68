package utils

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	w := LogWriter(logger, zerolog.WarnLevel)
	input := "first line\n\n  second line  \n"

	n, err := w.Write([]byte(input))
	require.NoError(t, err)
	assert.Equal(t, len(input), n)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"message":"first line"`)
	assert.Contains(t, lines[0], `"level":"warn"`)
	assert.Contains(t, lines[1], `"message":"second line"`)
}
