package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestZerologLogger_FieldsAndLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerologLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", "two")
	log.Warn(ctx, "wrn")
	log.Error(ctx, "err", "error", errors.New("boom"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 4)

	assert.Equal(t, "debug", lines[0]["level"])
	assert.Equal(t, float64(1), lines[0]["a"])
	assert.Equal(t, "info", lines[1]["level"])
	assert.Equal(t, "two", lines[1]["b"])
	assert.Equal(t, "warn", lines[2]["level"])
	assert.Equal(t, "error", lines[3]["level"])
	assert.Equal(t, "boom", lines[3]["error"])
}

func TestZerologLogger_WithAndOddArgs(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerologLogger(zerolog.New(&buf)).With("module", "objects")

	log.Info(context.Background(), "hello", "dangling")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "objects", lines[0]["module"])
	assert.Equal(t, "dangling", lines[0]["!BADKEY"])
}

func TestZerologLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerologLogger(zerolog.New(&buf).Level(zerolog.WarnLevel))

	log.Info(context.Background(), "dropped")
	log.Warn(context.Background(), "kept")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", lines[0]["message"])
}

func TestNew_Backends(t *testing.T) {
	for _, backend := range []string{BackendSlog, BackendZerolog} {
		t.Run(backend, func(t *testing.T) {
			var buf bytes.Buffer
			log, closer, err := New(Options{Backend: backend, Format: FormatJSON, Level: LevelInfo, Writer: &buf})
			require.NoError(t, err)
			defer closer.Close()

			log.Debug(context.Background(), "hidden")
			log.Info(context.Background(), "shown", "k", "v")

			out := buf.String()
			assert.NotContains(t, out, "hidden")
			assert.Contains(t, out, "shown")
			assert.Contains(t, out, `"k":"v"`)
		})
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	_, _, err := New(Options{Backend: "zap"})
	require.Error(t, err)
}

func TestNew_FileSink(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "server.log")

	var buf bytes.Buffer
	log, closer, err := New(Options{Backend: BackendSlog, Level: LevelInfo, File: path, FileMaxSizeMB: 1, Writer: &buf})
	require.NoError(t, err)

	log.Info(context.Background(), "to-file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to-file")
	assert.Contains(t, buf.String(), "to-file")
}

func TestNop(t *testing.T) {
	Nop().With("a", 1).Error(context.Background(), "nothing")
}
