package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidID(t *testing.T) {
	assert.True(t, IsValidID("tkt_9f8e7d6c5b4a392817161514"))
	assert.True(t, IsValidID("3f2504e0-4f89-11d3-9a0c-0305e82c3301"))
	assert.False(t, IsValidID("x"))
	assert.False(t, IsValidID("has spaces"))
	assert.False(t, IsValidID("../etc/passwd"))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("  hello  ", 100))
	assert.Equal(t, "ab", SanitizeString("abcd", 2))
	assert.Equal(t, "ab", SanitizeString("a\x00b", 100))
}

func TestValidate(t *testing.T) {
	errs := Validate(
		Required("bookingId", ""),
		PositiveAmount("amount", "-5"),
	)
	assert.Len(t, errs, 2)
	assert.Equal(t, "bookingId", errs[0].Field)
	assert.Contains(t, errs.Error(), "bookingId")

	errs = Validate(
		Required("bookingId", "bkg_123456789012"),
		PositiveAmount("amount", "450.00"),
	)
	assert.Empty(t, errs)
}
