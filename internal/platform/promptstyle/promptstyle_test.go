package promptstyle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplySystem(t *testing.T) {
	assert.Equal(t, "", ApplySystem("   ", "text"))

	out := ApplySystem("\nSummarize the chat.\nKeep it short.", "text")
	assert.True(t, strings.HasPrefix(out, marker))
	assert.Contains(t, out, "Task summary: Summarize the chat.")
	assert.True(t, strings.HasSuffix(out, "Keep it short."))

	assert.Equal(t, out, ApplySystem(out, "text"))
	assert.Contains(t, ApplySystem("Analyze", "image"), "Describe only what is visible")
}
