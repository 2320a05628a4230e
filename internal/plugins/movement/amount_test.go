package movement

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoveAmount(t *testing.T) {
	valid := []struct {
		in   any
		want uint64
	}{
		{"1", 100_000_000},
		{"1.5", 150_000_000},
		{"0.00000001", 1},
		{".25", 25_000_000},
		{"2.50000000", 250_000_000},
		{"1,000", 100_000_000_000},
		{"3 MOVE", 300_000_000},
		{json.Number("0.1"), 10_000_000},
		{json.Number("1e-8"), 1},
		{0.3, 30_000_000},
		{7, 700_000_000},
	}
	for _, tc := range valid {
		got, err := ParseMoveAmount(tc.in)
		require.NoError(t, err, "amount %v", tc.in)
		assert.Equal(t, tc.want, got, "amount %v", tc.in)
	}

	for _, bad := range []any{"", "0", "-1", "abc", "1.000000001", "1.2.3", "999999999999999999999", nil, true} {
		_, err := ParseMoveAmount(bad)
		assert.Error(t, err, "amount %v", bad)
	}
}

func TestFormatOctas(t *testing.T) {
	assert.Equal(t, "0", FormatOctas(0))
	assert.Equal(t, "1", FormatOctas(100_000_000))
	assert.Equal(t, "1.5", FormatOctas(150_000_000))
	assert.Equal(t, "0.00000001", FormatOctas(1))
	assert.Equal(t, "12.3456789", FormatOctas(1_234_567_890))
}
