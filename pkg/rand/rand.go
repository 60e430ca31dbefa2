package rand

import (
	"crypto/rand"

	"github.com/sirupsen/logrus"
)

const allLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// StringWithAll returns a random alphanumeric string of length n,
// suitable for API tokens. Uses crypto/rand.
func StringWithAll(n int) string {
	return secureRandomString(allLetters, n)
}

func secureRandomString(availableCharBytes string, length int) string {
	availableCharLength := len(availableCharBytes)
	if availableCharLength == 0 || availableCharLength > 256 {
		panic("availableCharBytes length must be greater than 0 and less than or equal to 256")
	}

	// bitmask wide enough to index the character set
	var bitLength byte
	for bits := availableCharLength - 1; bits != 0; {
		bits = bits >> 1
		bitLength++
	}
	bitMask := byte(1<<bitLength - 1)

	bufferSize := length + length/3

	result := make([]byte, length)
	for i, j, randomBytes := 0, 0, []byte{}; i < length; j++ {
		if j%bufferSize == 0 {
			randomBytes = secureRandomBytes(bufferSize)
		}
		// rejection sampling keeps the distribution uniform
		if idx := int(randomBytes[j%bufferSize] & bitMask); idx < availableCharLength {
			result[i] = availableCharBytes[idx]
			i++
		}
	}

	return string(result)
}

func secureRandomBytes(length int) []byte {
	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		logrus.Fatal("Unable to generate random bytes")
	}
	return randomBytes
}
