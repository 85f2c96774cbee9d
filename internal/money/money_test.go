package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	cases := map[string]string{
		"0":        "0.00",
		"7":        "7.00",
		"120.5":    "120.50",
		"1234.56":  "1234.56",
		"0.01":     "0.01",
		".50":      "0.50",
		"999.999":  "999.99", // truncated to storage scale
		"1000000":  "1000000.00",
	}
	for in, want := range cases {
		got, err := Canonical(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}
}

func TestParseRejects(t *testing.T) {
	for _, in := range []string{"", "-1", "+1", "1.2.3", "abc", "12a"} {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrInvalid, "input %q", in)
	}
}

func TestArithmetic(t *testing.T) {
	sum, err := Add("400.00", "300.50")
	require.NoError(t, err)
	assert.Equal(t, "700.50", sum)

	diff, err := Sub("400.00", "150.25")
	require.NoError(t, err)
	assert.Equal(t, "249.75", diff)

	// Sub floors at zero.
	floored, err := Sub("100.00", "500.00")
	require.NoError(t, err)
	assert.Equal(t, "0.00", floored)
}

func TestCmpMin(t *testing.T) {
	c, err := Cmp("100.00", "100")
	require.NoError(t, err)
	assert.Equal(t, 0, c)

	c, _ = Cmp("99.99", "100.00")
	assert.Equal(t, -1, c)

	m, err := Min("500.00", "400.00")
	require.NoError(t, err)
	assert.Equal(t, "400.00", m)
}

func TestIsPositive(t *testing.T) {
	assert.True(t, IsPositive("0.01"))
	assert.False(t, IsPositive("0"))
	assert.False(t, IsPositive("-5"))
	assert.False(t, IsPositive("junk"))
}
