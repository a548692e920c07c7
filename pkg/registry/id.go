package registry

import "crypto/rand"

// deviceIDLength is the length of generated device identifiers. At 16
// alphanumeric characters the space is ~62^16, large enough to treat
// collisions as negligible.
const deviceIDLength = 16

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// newDeviceID generates a random alphanumeric device identifier.
func newDeviceID() string {
	buf := make([]byte, deviceIDLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms.
		panic("registry: reading random bytes: " + err.Error())
	}
	for i, b := range buf {
		buf[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(buf)
}
