package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

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
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}

	return out
}

func TestNew(t *testing.T) {
	t.Run("writes json with service and fields", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Options{Service: "folioserve", Out: &buf})
		require.NoError(t, err)

		l.Info("connection served", F("conn", "c-1"), Err(errors.New("boom")))

		lines := decodeLines(t, &buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "folioserve", lines[0]["service"])
		assert.Equal(t, "info", lines[0]["level"])
		assert.Equal(t, "connection served", lines[0]["message"])
		assert.Equal(t, "c-1", lines[0]["conn"])
		assert.Equal(t, "boom", lines[0]["error"])
	})

	t.Run("filters below level", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Options{Service: "s", Level: "warn", Out: &buf})
		require.NoError(t, err)

		l.Debug("d")
		l.Info("i")
		l.Warn("w")
		l.Error("e")

		lines := decodeLines(t, &buf)
		require.Len(t, lines, 2)
		assert.Equal(t, "w", lines[0]["message"])
		assert.Equal(t, "e", lines[1]["message"])
	})

	t.Run("rejects unknown level", func(t *testing.T) {
		_, err := New(Options{Level: "loud"})
		assert.Error(t, err)
	})

	t.Run("rejects unknown format", func(t *testing.T) {
		_, err := New(Options{Format: "xml"})
		assert.Error(t, err)
	})

	t.Run("console format is not json", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Options{Service: "s", Format: "console", Out: &buf})
		require.NoError(t, err)

		l.Info("hello")
		assert.Contains(t, buf.String(), "hello")
		assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
	})

	t.Run("writes to log dir as well", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "logs")
		var buf bytes.Buffer
		l, err := New(Options{Service: "svc", Out: &buf, Dir: dir})
		require.NoError(t, err)

		l.Info("to file")
		require.NoError(t, l.Close())
		require.NoError(t, l.Close())

		name := filepath.Join(dir, "svc_"+time.Now().Format(dateLayout)+".log")
		data, err := os.ReadFile(name)
		require.NoError(t, err)
		assert.Contains(t, string(data), "to file")
		assert.Contains(t, buf.String(), "to file")
	})
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Service: "s", Out: &buf})
	require.NoError(t, err)

	child := l.With(F("conn", "c-7"))
	child.Warn("write failed")
	l.Warn("parent")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "c-7", lines[0]["conn"])
	_, ok := lines[1]["conn"]
	assert.False(t, ok)

	assert.NoError(t, child.Close())
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	require.NotNil(t, l)
	l.Error("ignored", F("k", 1))
	assert.NoError(t, l.With(F("a", "b")).Close())
}

func TestDailyFileWriter(t *testing.T) {
	t.Run("rotates when the date changes", func(t *testing.T) {
		dir := t.TempDir()
		day := time.Date(2026, 1, 2, 23, 59, 0, 0, time.UTC)
		w, err := newDailyFileWriter("svc", dir, func() time.Time { return day })
		require.NoError(t, err)
		defer func() { _ = w.Close() }()

		_, err = w.Write([]byte("one\n"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "svc_2026-01-02.log"), w.CurrentLogFile())

		day = day.Add(2 * time.Minute)
		_, err = w.Write([]byte("two\n"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "svc_2026-01-03.log"), w.CurrentLogFile())

		first, err := os.ReadFile(filepath.Join(dir, "svc_2026-01-02.log"))
		require.NoError(t, err)
		assert.Equal(t, "one\n", string(first))
		second, err := os.ReadFile(filepath.Join(dir, "svc_2026-01-03.log"))
		require.NoError(t, err)
		assert.Equal(t, "two\n", string(second))
	})

	t.Run("write after close fails", func(t *testing.T) {
		w, err := NewDailyFileWriter("svc", t.TempDir())
		require.NoError(t, err)
		require.NoError(t, w.Close())

		_, err = w.Write([]byte("x"))
		assert.ErrorIs(t, err, errWriterClosed)
		assert.Empty(t, w.CurrentLogFile())
	})

	t.Run("fails when directory is missing", func(t *testing.T) {
		_, err := NewDailyFileWriter("svc", filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
	})
}
