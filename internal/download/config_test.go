package download

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()

	tests := []struct {
		name     string
		raw      map[string]any
		expected Config
	}{
		{
			name:     "empty patch",
			raw:      map[string]any{},
			expected: base,
		},
		{
			name: "all valid",
			raw: map[string]any{
				"sameTimeDownloads":      float64(2),
				"overrideFile":           true,
				"maxDuplicationFileName": float64(10),
				"timeout":                float64(1500),
			},
			expected: Config{SameTimeDownloads: 2, OverrideFile: true, MaxDuplicationFileName: 10, Timeout: 1500 * time.Millisecond},
		},
		{
			name: "invalid values dropped",
			raw: map[string]any{
				"sameTimeDownloads":      float64(0),
				"overrideFile":           "yes",
				"maxDuplicationFileName": 2.5,
				"timeout":                float64(-1),
				"unknown":                true,
			},
			expected: base,
		},
		{
			name:     "timeout above ceiling dropped",
			raw:      map[string]any{"timeout": float64((MaxTimeout + time.Second).Milliseconds())},
			expected: base,
		},
		{
			name:     "partial merge",
			raw:      map[string]any{"sameTimeDownloads": 3, "overrideFile": "nope"},
			expected: Config{SameTimeDownloads: 3, MaxDuplicationFileName: DefaultMaxDuplicationFileName, Timeout: DefaultTimeout},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, base.Merge(tt.raw))
		})
	}
}

func TestParseConfigPatch(t *testing.T) {
	assert.Empty(t, ParseConfigPatch([]byte(`[1,2]`)))
	assert.Empty(t, ParseConfigPatch([]byte(`not json`)))
	assert.Empty(t, ParseConfigPatch([]byte(`null`)))

	patch := ParseConfigPatch([]byte(`{"sameTimeDownloads": 4}`))
	assert.Equal(t, 4, DefaultConfig().Merge(patch).SameTimeDownloads)
}

func TestConfigMarshalJSON(t *testing.T) {
	data, err := json.Marshal(DefaultConfig())
	assert.NoError(t, err)
	assert.JSONEq(t, `{"sameTimeDownloads":5,"overrideFile":false,"maxDuplicationFileName":1000,"timeout":5000}`, string(data))
}
