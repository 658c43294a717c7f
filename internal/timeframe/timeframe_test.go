package timeframe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeconds(t *testing.T) {
	assert.Equal(t, int64(60), M1.Seconds())
	assert.Equal(t, int64(3600), H1.Seconds())
	assert.Equal(t, int64(86400), D1.Seconds())
}

func TestParse(t *testing.T) {
	c, err := Parse("M15")
	require.NoError(t, err)
	assert.Equal(t, M15, c)
	assert.Equal(t, 15*time.Minute, c.Duration())

	_, err = Parse("H2")
	assert.Error(t, err)
}
