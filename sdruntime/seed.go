package sdruntime

import (
	"crypto/rand"
	"encoding/binary"
	"math"
)

// RandomSeed returns a non-negative seed from crypto/rand. The seed is
// reported with every render request so a background can be reproduced.
func RandomSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 42
	}
	return int64(binary.LittleEndian.Uint64(buf[:]) & math.MaxInt64)
}
