package envutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDuration(t *testing.T) {
	t.Setenv("CF_TEST_DELAY", "150")
	assert.Equal(t, 150*time.Second, Duration("CF_TEST_DELAY", time.Second))

	t.Setenv("CF_TEST_DELAY", "3s")
	assert.Equal(t, 3*time.Second, Duration("CF_TEST_DELAY", time.Second))

	t.Setenv("CF_TEST_DELAY", "soon")
	assert.Equal(t, time.Second, Duration("CF_TEST_DELAY", time.Second))
}

func TestIntAndBool(t *testing.T) {
	t.Setenv("CF_TEST_INT", "x")
	assert.Equal(t, 4, Int("CF_TEST_INT", 4))
	t.Setenv("CF_TEST_INT", "8")
	assert.Equal(t, 8, Int("CF_TEST_INT", 4))

	t.Setenv("CF_TEST_BOOL", "on")
	assert.True(t, Bool("CF_TEST_BOOL", false))
	t.Setenv("CF_TEST_BOOL", "")
	assert.True(t, Bool("CF_TEST_BOOL", true))
}
