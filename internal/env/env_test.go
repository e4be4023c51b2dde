package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	t.Setenv("APMZ_TEST_VALUE", "set")
	assert.Equal(t, "set", Get("APMZ_TEST_VALUE", "default"))
	assert.Equal(t, "default", Get("APMZ_TEST_MISSING", "default"))
}

func TestBool(t *testing.T) {
	t.Setenv("APMZ_TEST_BOOL", "false")
	t.Setenv("APMZ_TEST_BAD_BOOL", "maybe")

	assert.False(t, Bool("APMZ_TEST_BOOL", true))
	assert.True(t, Bool("APMZ_TEST_BAD_BOOL", true))
	assert.True(t, Bool("APMZ_TEST_MISSING", true))
}

func TestFloat(t *testing.T) {
	t.Setenv("APMZ_TEST_RATE", "0.25")
	t.Setenv("APMZ_TEST_BAD_RATE", "quarter")

	assert.InDelta(t, 0.25, Float("APMZ_TEST_RATE", 1), 1e-9)
	assert.InDelta(t, 1.0, Float("APMZ_TEST_BAD_RATE", 1), 1e-9)
}

func TestList(t *testing.T) {
	t.Setenv("APMZ_TEST_LIST", " x-request-id, ,User-Agent ")
	assert.Equal(t, []string{"x-request-id", "User-Agent"}, List("APMZ_TEST_LIST"))
	assert.Nil(t, List("APMZ_TEST_MISSING"))
}
