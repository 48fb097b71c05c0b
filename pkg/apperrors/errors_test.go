package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuotaError_UnwrapsToSentinel(t *testing.T) {
	err := fmt.Errorf("enforce: %w", &QuotaError{UserID: "u1", Reason: "Daily token limit exceeded (9500/10000)"})

	assert.True(t, errors.Is(err, ErrQuotaExceeded))

	var qe *QuotaError
	assert.True(t, errors.As(err, &qe))
	assert.Equal(t, "u1", qe.UserID)
	assert.Contains(t, err.Error(), "Daily token limit exceeded (9500/10000)")
}
