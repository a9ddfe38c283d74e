package errs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitMessage(t *testing.T) {
	tests := []struct {
		wait int
		want string
	}{
		{1, "Rate limit exceeded. Please wait 1 minute before adding more songs."},
		{2, "Rate limit exceeded. Please wait 2 minutes before adding more songs."},
		{5, "Rate limit exceeded. Please wait 5 minutes before adding more songs."},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.wait), func(t *testing.T) {
			err := fmt.Errorf("append: %w", &RateLimitError{WaitMinutes: tt.wait})
			rl, ok := AsRateLimit(err)
			require.True(t, ok)
			assert.Equal(t, tt.want, rl.Error())
		})
	}
}

func TestValidationWrapsSentinel(t *testing.T) {
	err := Validation("identity must be at most %d bytes", 64)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "validation failed: identity must be at most 64 bytes", err.Error())

	_, ok := AsRateLimit(err)
	assert.False(t, ok)
}
