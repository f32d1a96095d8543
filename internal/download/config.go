package download

import (
	"encoding/json"
	"math"
	"time"
)

const (
	DefaultSameTimeDownloads      = 5
	DefaultMaxDuplicationFileName = 1000
	DefaultTimeout                = 5 * time.Second
	MaxTimeout                    = 5 * time.Hour

	maxSafeInteger = 1<<53 - 1
)

// Config is the engine-wide tuning. It can be replaced while the engine runs.
type Config struct {
	SameTimeDownloads      int
	OverrideFile           bool
	MaxDuplicationFileName int
	Timeout                time.Duration
}

func DefaultConfig() Config {
	return Config{
		SameTimeDownloads:      DefaultSameTimeDownloads,
		OverrideFile:           false,
		MaxDuplicationFileName: DefaultMaxDuplicationFileName,
		Timeout:                DefaultTimeout,
	}
}

type configJSON struct {
	SameTimeDownloads      int  `json:"sameTimeDownloads"`
	OverrideFile           bool `json:"overrideFile"`
	MaxDuplicationFileName int  `json:"maxDuplicationFileName"`
	Timeout                int  `json:"timeout"`
}

// MarshalJSON writes the timeout in milliseconds.
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(configJSON{
		SameTimeDownloads:      c.SameTimeDownloads,
		OverrideFile:           c.OverrideFile,
		MaxDuplicationFileName: c.MaxDuplicationFileName,
		Timeout:                int(c.Timeout / time.Millisecond),
	})
}

// Merge returns c with every recognized, well-typed field of raw applied.
// Unknown keys and invalid values are dropped without error.
func (c Config) Merge(raw map[string]any) Config {
	if v, ok := positiveInt(raw["sameTimeDownloads"]); ok {
		c.SameTimeDownloads = v
	}
	if v, ok := raw["overrideFile"].(bool); ok {
		c.OverrideFile = v
	}
	if v, ok := positiveInt(raw["maxDuplicationFileName"]); ok {
		c.MaxDuplicationFileName = v
	}
	if v, ok := positiveInt(raw["timeout"]); ok {
		if timeout := time.Duration(v) * time.Millisecond; timeout <= MaxTimeout {
			c.Timeout = timeout
		}
	}
	return c
}

// ParseConfigPatch decodes a JSON object for Merge. Anything that is not an
// object yields an empty patch.
func ParseConfigPatch(data []byte) map[string]any {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return map[string]any{}
	}
	return raw
}

func positiveInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, n > 0
	case int64:
		return int(n), n > 0 && n <= maxSafeInteger
	case float64:
		if n != math.Trunc(n) || n <= 0 || n > maxSafeInteger {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), i > 0 && i <= maxSafeInteger
	default:
		return 0, false
	}
}
