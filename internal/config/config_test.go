package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type layout struct {
	src, dst, log string
}

func newLayout(t *testing.T) layout {
	t.Helper()
	root := t.TempDir()
	l := layout{
		src: filepath.Join(root, "src"),
		dst: filepath.Join(root, "dst"),
		log: filepath.Join(root, "mirror.log"),
	}
	require.NoError(t, os.Mkdir(l.src, 0o755))
	require.NoError(t, os.Mkdir(l.dst, 0o755))
	require.NoError(t, os.WriteFile(l.log, nil, 0o644))
	return l
}

func TestConfigValidate_OK(t *testing.T) {
	l := newLayout(t)
	cfg := &Config{Source: l.src, Replica: l.dst, LogPath: l.log, IntervalSeconds: 5}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Second, cfg.Interval())
}

func TestConfigValidate_Errors(t *testing.T) {
	l := newLayout(t)
	nested := filepath.Join(l.src, "inner")
	require.NoError(t, os.Mkdir(nested, 0o755))
	logInSrc := filepath.Join(l.src, "mirror.log")
	require.NoError(t, os.WriteFile(logInSrc, nil, 0o644))
	logInDst := filepath.Join(l.dst, "mirror.log")
	require.NoError(t, os.WriteFile(logInDst, nil, 0o644))

	cases := []struct {
		name     string
		cfg      Config
		contains string
	}{
		{"missing source", Config{Replica: l.dst, LogPath: l.log, IntervalSeconds: 1}, "source directory is required"},
		{"source not found", Config{Source: filepath.Join(l.src, "nope"), Replica: l.dst, LogPath: l.log, IntervalSeconds: 1}, "does not exist"},
		{"replica is a file", Config{Source: l.src, Replica: l.log, LogPath: l.log, IntervalSeconds: 1}, "not a directory"},
		{"log missing", Config{Source: l.src, Replica: l.dst, LogPath: filepath.Join(filepath.Dir(l.log), "other.log"), IntervalSeconds: 1}, "log file"},
		{"log is a directory", Config{Source: l.src, Replica: l.dst, LogPath: filepath.Dir(l.log), IntervalSeconds: 1}, "not a file"},
		{"zero interval", Config{Source: l.src, Replica: l.dst, LogPath: l.log}, "positive"},
		{"negative interval", Config{Source: l.src, Replica: l.dst, LogPath: l.log, IntervalSeconds: -3}, "positive"},
		{"replica inside source", Config{Source: l.src, Replica: nested, LogPath: l.log, IntervalSeconds: 1}, "contain each other"},
		{"source inside replica", Config{Source: nested, Replica: l.src, LogPath: l.log, IntervalSeconds: 1}, "contain each other"},
		{"same directory", Config{Source: l.src, Replica: l.src, LogPath: l.log, IntervalSeconds: 1}, "contain each other"},
		{"log in source", Config{Source: l.src, Replica: l.dst, LogPath: logInSrc, IntervalSeconds: 1}, "inside source"},
		{"log in replica", Config{Source: l.src, Replica: l.dst, LogPath: logInDst, IntervalSeconds: 1}, "inside replica"},
		{"negative workers", Config{Source: l.src, Replica: l.dst, LogPath: l.log, IntervalSeconds: 1, Workers: -1}, "workers"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), c.contains)
		})
	}
}

func TestConfigValidate_ReportsAllProblems(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "source directory is required")
	assert.Contains(t, msg, "replica directory is required")
	assert.Contains(t, msg, "log file is required")
	assert.Contains(t, msg, "positive")
}
