package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	t.Run("RoundTrip", func(t *testing.T) {
		hashed, err := h.Hash("s3cret")
		require.NoError(t, err)
		assert.NotEqual(t, "s3cret", hashed)
		assert.NoError(t, h.Verify("s3cret", hashed))
	})

	t.Run("WrongPassword", func(t *testing.T) {
		hashed, err := h.Hash("s3cret")
		require.NoError(t, err)
		assert.Error(t, h.Verify("not-it", hashed))
	})

	t.Run("OutOfRangeCostFallsBack", func(t *testing.T) {
		assert.Equal(t, bcrypt.DefaultCost, NewPasswordHasher(0).cost)
		assert.Equal(t, bcrypt.DefaultCost, NewPasswordHasher(bcrypt.MaxCost+1).cost)
		assert.Equal(t, bcrypt.MinCost, NewPasswordHasher(bcrypt.MinCost).cost)
	})
}
