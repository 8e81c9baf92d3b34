package telegram

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsStaleEditError(t *testing.T) {
	assert.True(t, isStaleEditError(fmt.Errorf("Bad Request: message to edit not found")))
	assert.True(t, isStaleEditError(fmt.Errorf("Bad Request: message is not modified: ...")))
	assert.False(t, isStaleEditError(fmt.Errorf("Too Many Requests: retry after 5")))
	assert.False(t, isStaleEditError(fmt.Errorf("Forbidden: bot was blocked by the user")))
}
