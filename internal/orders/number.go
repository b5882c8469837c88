package orders

import (
	"crypto/sha256"
	"encoding/binary"
	"strings"

	"github.com/google/uuid"
)

// Alphabet without the easily confused I, O and U.
const orderNumberAlphabet = "0123456789ABCDEFGHJKLMNPQRSTVWXYZ"

const defaultOrderNumberLength = 6

// GenerateOrderNumber derives a human-readable order number from the order id
// and a salt. Collisions are handled by the caller retrying with the next
// salt until the number is unused.
func GenerateOrderNumber(orderID uuid.UUID, salt, length int) string {
	if length <= 0 {
		length = defaultOrderNumberLength
	}

	input := make([]byte, 0, len(orderID)+4)
	input = append(input, orderID[:]...)
	input = binary.BigEndian.AppendUint32(input, uint32(salt))
	sum := sha256.Sum256(input)

	var builder strings.Builder
	builder.Grow(length)
	for i := 0; i < length; i++ {
		builder.WriteByte(orderNumberAlphabet[int(sum[i%len(sum)])%len(orderNumberAlphabet)])
	}
	return builder.String()
}
