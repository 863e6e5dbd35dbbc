package hashing

import (
	"crypto/sha512"
	"encoding/hex"
)

// Calculate returns the hex encoded SHA-512 of data.
func Calculate(data []byte) string {
	hash := sha512.Sum512(data)
	return hex.EncodeToString(hash[:])
}

func CalculateSHA512(data string) string {
	return Calculate([]byte(data))
}
