package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/openmined/syftmirror/internal/utils"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
)

type Config struct {
	Source          string   `json:"source" mapstructure:"source"`
	Replica         string   `json:"replica" mapstructure:"replica"`
	IntervalSeconds int      `json:"interval" mapstructure:"interval"`
	LogPath         string   `json:"log" mapstructure:"log"`
	Workers         int      `json:"workers" mapstructure:"workers"`
	Excludes        []string `json:"exclude" mapstructure:"exclude"`
	Once            bool     `json:"-"`
	Verbose         bool     `json:"-"`
	Path            string   `json:"-"`
}

// Interval returns the period between full mirror passes
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Validate checks every field and reports all problems at once.
// Each problem wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}

	src := c.resolveDir("source", c.Source, invalid)
	dst := c.resolveDir("replica", c.Replica, invalid)

	var logPath string
	if c.LogPath == "" {
		invalid("log file is required")
	} else if p, err := utils.CanonicalPath(c.LogPath); err != nil {
		invalid("log file %q: %v", c.LogPath, err)
	} else if !utils.FileExists(p) {
		invalid("log file %q does not exist or is not a file", c.LogPath)
	} else {
		logPath = p
	}

	if c.IntervalSeconds <= 0 {
		invalid("interval must be a positive number of seconds, got %d", c.IntervalSeconds)
	}

	if c.Workers < 0 {
		invalid("workers must not be negative, got %d", c.Workers)
	}

	if src != "" && dst != "" && (utils.IsSubpath(src, dst) || utils.IsSubpath(dst, src)) {
		invalid("source %q and replica %q must not contain each other", src, dst)
	}

	if logPath != "" {
		if src != "" && utils.IsSubpath(src, logPath) {
			invalid("log file %q must not be inside source %q", logPath, src)
		}
		if dst != "" && utils.IsSubpath(dst, logPath) {
			invalid("log file %q must not be inside replica %q", logPath, dst)
		}
	}

	return errors.Join(errs...)
}

func (c *Config) resolveDir(name, path string, invalid func(string, ...any)) string {
	if path == "" {
		invalid("%s directory is required", name)
		return ""
	}

	resolved, err := utils.CanonicalPath(path)
	if err != nil {
		invalid("%s %q: %v", name, path, err)
		return ""
	}

	if !utils.DirExists(resolved) {
		invalid("%s %q does not exist or is not a directory", name, path)
		return ""
	}

	return resolved
}
