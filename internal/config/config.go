package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/baaaaaaaka/calltrace/internal/callframe"
)

const (
	CurrentVersion = 1
	EnvConfigPath  = "CALLTRACE_CONFIG"

	DefaultRefreshInterval = time.Second
	MinRefreshInterval     = 100 * time.Millisecond
	DefaultMaxRecent       = 20
)

const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

type Config struct {
	Version         int           `json:"version"`
	SentinelPolicy  string        `json:"sentinelPolicy,omitempty"`
	ExpandAll       bool          `json:"expandAll"`
	PreviewChars    int           `json:"previewChars,omitempty"`
	RefreshInterval string        `json:"refreshInterval,omitempty"`
	Color           string        `json:"color,omitempty"`
	Recent          []RecentTrace `json:"recent,omitempty"`
}

// RecentTrace remembers a trace file opened in the viewer.
type RecentTrace struct {
	Path     string    `json:"path"`
	Frames   int       `json:"frames"`
	OpenedAt time.Time `json:"openedAt"`
}

func Default() Config {
	return Config{
		Version:         CurrentVersion,
		SentinelPolicy:  string(callframe.SentinelDropAll),
		PreviewChars:    100,
		RefreshInterval: DefaultRefreshInterval.String(),
		Color:           ColorAuto,
	}
}

func DefaultPath() (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvConfigPath)); v != "" {
		return filepath.Clean(os.ExpandEnv(v)), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "calltrace", "config.json"), nil
}

// Policy returns the configured sentinel policy, falling back to dropping all
// gateway frames when the stored value is unknown.
func (c Config) Policy() callframe.SentinelPolicy {
	p, err := callframe.ParseSentinelPolicy(c.SentinelPolicy)
	if err != nil {
		return callframe.SentinelDropAll
	}
	return p
}

func (c Config) Interval() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.RefreshInterval))
	if err != nil || d <= 0 {
		return DefaultRefreshInterval
	}
	return max(d, MinRefreshInterval)
}

func (c Config) Preview() int {
	if c.PreviewChars <= 0 {
		return 100
	}
	return c.PreviewChars
}

func (c Config) ColorMode() string {
	switch strings.ToLower(strings.TrimSpace(c.Color)) {
	case ColorAlways:
		return ColorAlways
	case ColorNever:
		return ColorNever
	}
	return ColorAuto
}
