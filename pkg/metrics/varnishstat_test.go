package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVarnishstat(t *testing.T) {
	input := `{"counters":{"MAIN.cache_hit":{"value":42},"MAIN.cache_miss":{"value":3}}}`
	got, err := parseVarnishstat([]byte(input))
	require.NoError(t, err)
	assert.Equal(t, float64(42), got["MAIN.cache_hit"])
	assert.Equal(t, float64(3), got["MAIN.cache_miss"])
}

func TestParseVarnishstat_Malformed(t *testing.T) {
	_, err := parseVarnishstat([]byte("not json"))
	assert.Error(t, err)
}
