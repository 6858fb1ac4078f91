package signer

import (
	"crypto/md5" //nolint:gosec // protocol-mandated digest, not used for security
	"encoding/hex"
	"fmt"
)

// nibbles decodes lowercase hex digits; every other byte maps to -1.
var nibbles = func() [256]int8 {
	var t [256]int8
	for i := range t {
		t[i] = -1
	}
	for c := '0'; c <= '9'; c++ {
		t[c] = int8(c - '0')
	}
	for c := 'a'; c <= 'f'; c++ {
		t[c] = int8(c-'a') + 10
	}
	return t
}()

// packHexPairs turns a hex digest into its bytes. Strings longer than a
// digest are not hex at all and map to one byte per character instead.
// Malformed digests panic: they can only come from a broken caller.
func packHexPairs(s string) []byte {
	if len(s) > md5.Size*2 {
		out := make([]byte, len(s))
		for i := 0; i < len(s); i++ {
			out[i] = s[i]
		}
		return out
	}
	if len(s)%2 != 0 {
		panic(fmt.Sprintf("signer: odd-length digest %q", s))
	}
	out := make([]byte, 0, len(s)/2)
	for i := 0; i < len(s); i += 2 {
		hi, lo := nibbles[s[i]], nibbles[s[i+1]]
		if hi < 0 || lo < 0 {
			panic(fmt.Sprintf("signer: non-hex digest %q", s))
		}
		out = append(out, byte(hi)<<4|byte(lo))
	}
	return out
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}

// rehash hashes the packed form of an existing hex digest and returns the
// packed result.
func rehash(digest string) []byte {
	return packHexPairs(md5Hex(packHexPairs(digest)))
}

// digestChain is md5 of the raw input followed by one rehash.
func digestChain(raw string) []byte {
	return rehash(md5Hex([]byte(raw)))
}
