package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/baaaaaaaka/calltrace/internal/callframe"
)

var settableKeys = []string{"color", "expandAll", "previewChars", "refreshInterval", "sentinelPolicy"}

func Keys() []string {
	out := append([]string(nil), settableKeys...)
	sort.Strings(out)
	return out
}

// Set validates and stores a single setting by its JSON key.
func (c *Config) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "sentinelPolicy":
		p, err := callframe.ParseSentinelPolicy(value)
		if err != nil {
			return err
		}
		c.SentinelPolicy = string(p)
	case "expandAll":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("expandAll: %w", err)
		}
		c.ExpandAll = b
	case "previewChars":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("previewChars: %w", err)
		}
		if n <= 0 {
			return fmt.Errorf("previewChars must be positive, got %d", n)
		}
		c.PreviewChars = n
	case "refreshInterval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("refreshInterval: %w", err)
		}
		if d < MinRefreshInterval {
			return fmt.Errorf("refreshInterval must be at least %s, got %s", MinRefreshInterval, d)
		}
		c.RefreshInterval = d.String()
	case "color":
		v := strings.ToLower(value)
		if v != ColorAuto && v != ColorAlways && v != ColorNever {
			return fmt.Errorf("color must be one of %s, %s, %s", ColorAuto, ColorAlways, ColorNever)
		}
		c.Color = v
	default:
		return fmt.Errorf("unknown config key %q (known: %s)", key, strings.Join(Keys(), ", "))
	}
	return nil
}

func (c Config) Get(key string) (string, bool) {
	switch key {
	case "sentinelPolicy":
		return string(c.Policy()), true
	case "expandAll":
		return strconv.FormatBool(c.ExpandAll), true
	case "previewChars":
		return strconv.Itoa(c.Preview()), true
	case "refreshInterval":
		return c.Interval().String(), true
	case "color":
		return c.ColorMode(), true
	}
	return "", false
}

// RecordRecent moves path to the front of the recent list, keeping at most max
// entries.
func (c *Config) RecordRecent(entry RecentTrace, max int) {
	if strings.TrimSpace(entry.Path) == "" {
		return
	}
	c.RemoveRecent(entry.Path)
	c.Recent = append([]RecentTrace{entry}, c.Recent...)
	if max > 0 && len(c.Recent) > max {
		c.Recent = c.Recent[:max]
	}
}

func (c *Config) RemoveRecent(path string) bool {
	for i := range c.Recent {
		if c.Recent[i].Path != path {
			continue
		}
		c.Recent = append(c.Recent[:i], c.Recent[i+1:]...)
		return true
	}
	return false
}
