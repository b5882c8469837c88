package orders

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestGenerateOrderNumberDeterministic(t *testing.T) {
	orderID := uuid.MustParse("3d9a54f6-6a5e-4c88-9e6f-2f3a6f1f0001")

	first := GenerateOrderNumber(orderID, 0, 6)
	second := GenerateOrderNumber(orderID, 0, 6)
	assert.Equal(t, first, second)
	assert.Len(t, first, 6)

	for _, char := range first {
		assert.Contains(t, orderNumberAlphabet, string(char))
	}
}

func TestGenerateOrderNumberSaltChangesResult(t *testing.T) {
	orderID := uuid.MustParse("3d9a54f6-6a5e-4c88-9e6f-2f3a6f1f0001")

	assert.NotEqual(t,
		GenerateOrderNumber(orderID, 0, 8),
		GenerateOrderNumber(orderID, 1, 8),
	)
}

func TestGenerateOrderNumberDefaultLength(t *testing.T) {
	assert.Len(t, GenerateOrderNumber(uuid.New(), 0, 0), defaultOrderNumberLength)
}
