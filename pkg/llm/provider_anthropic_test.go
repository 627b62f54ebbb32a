package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThinkingBudget(t *testing.T) {
	assert.EqualValues(t, 1024, thinkingBudget("low"))
	assert.EqualValues(t, 4096, thinkingBudget("medium"))
	assert.EqualValues(t, 16384, thinkingBudget("high"))
	assert.EqualValues(t, 0, thinkingBudget(""))
	assert.EqualValues(t, 0, thinkingBudget("maximum"))
}
