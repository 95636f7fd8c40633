package conv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToFloat64(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{1.5, 1.5, true},
		{float32(2), 2, true},
		{3, 3, true},
		{int64(4), 4, true},
		{uint64(5), 5, true},
		{true, 1, true},
		{"6", 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := ToFloat64(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}

func TestConfigGet(t *testing.T) {
	m := map[string]any{
		"name":       "lp",
		"C":          10,
		"tol":        1e-3,
		"time_limit": 1.5,
		"seed":       2024.0,
	}

	assert.Equal(t, "lp", ConfigGet(m, "name", ""))
	assert.Equal(t, "x", ConfigGet(m, "missing", "x"))
	assert.Equal(t, "x", ConfigGet(m, "C", "x"))
	assert.Equal(t, 10.0, ConfigGetFloat64(m, "C", 0))
	assert.Equal(t, 1e-3, ConfigGetFloat64(m, "tol", 0))
	assert.Equal(t, int64(2024), ConfigGetInt64(m, "seed", 0))
	assert.Equal(t, 1500*time.Millisecond, ConfigGetSeconds(m, "time_limit", 0))
	assert.Equal(t, time.Minute, ConfigGetSeconds(m, "missing", time.Minute))
	assert.True(t, Has(m, "C"))
	assert.False(t, Has(m, "name"))
	assert.Equal(t, 7.0, ConfigGetFloat64(nil, "C", 7))
}
