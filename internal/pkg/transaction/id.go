package transaction

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"time"
)

const (
	idPrefix       = "TXN_"
	idSuffixLength = 9
	base36         = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// NewID returns TXN_<unix millis>_<9 base36 chars>. Unique enough for the
// retention window, not meant as a secret.
func NewID(now time.Time) (string, error) {
	suffix, err := randomBase36(idSuffixLength)
	if err != nil {
		return "", err
	}
	return idPrefix + strconv.FormatInt(now.UnixMilli(), 10) + "_" + suffix, nil
}

func randomBase36(length int) (string, error) {
	// Rejection sampling to avoid modulo bias.
	// 252 is the largest multiple of 36 below 256.
	const maxRandomByte = 252

	out := make([]byte, length)
	buf := make([]byte, length*2)
	written := 0

	for written < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read secure random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= maxRandomByte {
				continue
			}
			out[written] = base36[int(b)%len(base36)]
			written++
			if written == length {
				break
			}
		}
	}

	return string(out), nil
}
