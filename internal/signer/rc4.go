package signer

import (
	"crypto/rc4" //nolint:gosec // protocol-mandated cipher, not used for secrecy
	"fmt"
)

// rc4Apply applies the RC4 keystream derived from key to data and returns a
// new slice. Encryption and decryption are the same operation.
func rc4Apply(key, data []byte) []byte {
	c, err := rc4.NewCipher(key)
	if err != nil {
		panic(fmt.Sprintf("signer: rc4 key: %v", err))
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}
