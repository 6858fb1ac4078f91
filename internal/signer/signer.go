// Package signer computes the X-Bogus request signature expected by the
// platform's web endpoints.
//
// The construction is an external protocol: the cipher key, the alphabet and
// the fixed counter must stay exactly as they are or the remote side rejects
// the request.
package signer

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
)

const (
	// Alphabet is the output alphabet. Only the first 64 symbols are ever
	// emitted; the trailing '=' is part of the upstream table.
	Alphabet = "Dkdpgh4ZKsQB80/Mfvw36XI1R25-WUAlEi7NLboqYTOPuzmFjJnryx9HVGcaStCe="

	// TokenLength is the length of every produced token.
	TokenLength = 24

	// QueryParam is the query parameter carrying the token.
	QueryParam = "X-Bogus"

	// DefaultUserAgent is the desktop browser identity used when none is configured.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/131.0.0.0 Safari/537.36"

	emptyDigest  = "d41d8cd98f00b204e9800998ecf8427e"
	fixedCounter = 536919696
	vectorLen    = 19
)

var (
	cipherKey = []byte{0x00, 0x01, 0x0c}

	// constantDigest is the rehash of the empty-input digest.
	constantDigest = rehash(emptyDigest)
)

// Signature is the result of signing one URL.
type Signature struct {
	Token     string
	SignedURL string
}

// Signer signs URLs on behalf of one user agent.
type Signer struct {
	userAgent string
	uaDigest  []byte
}

// New prepares a Signer for userAgent. The user agent must be representable
// in ISO-8859-1.
func New(userAgent string) (*Signer, error) {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	latin1, err := charmap.ISO8859_1.NewEncoder().String(userAgent)
	if err != nil {
		return nil, fmt.Errorf("encode user agent as ISO-8859-1: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(rc4Apply(cipherKey, []byte(latin1)))
	return &Signer{
		userAgent: userAgent,
		uaDigest:  packHexPairs(md5Hex([]byte(encoded))),
	}, nil
}

// UserAgent returns the user agent the signer was built for.
func (s *Signer) UserAgent() string {
	return s.userAgent
}

// Sign returns the token for urlPath at time now and the URL with the token
// appended.
func (s *Signer) Sign(urlPath string, now time.Time) Signature {
	vec := s.vector(urlPath, now)
	token := encode(interleave(vec[:]))
	return Signature{
		Token:     token,
		SignedURL: urlPath + "&" + QueryParam + "=" + token,
	}
}

// vector builds the checksummed 19-element input of the encoder.
func (s *Signer) vector(urlPath string, now time.Time) [vectorLen]int {
	pathDigest := digestChain(urlPath)
	ts := uint32(now.Unix())

	vec := [vectorLen]int{
		64,
		0, // 1/256, truncated to its integer part
		1,
		12,
		int(pathDigest[14]),
		int(pathDigest[15]),
		int(constantDigest[14]),
		int(constantDigest[15]),
		int(s.uaDigest[14]),
		int(s.uaDigest[15]),
		int(ts >> 24 & 0xff),
		int(ts >> 16 & 0xff),
		int(ts >> 8 & 0xff),
		int(ts & 0xff),
		fixedCounter >> 24 & 0xff,
		fixedCounter >> 16 & 0xff,
		fixedCounter >> 8 & 0xff,
		fixedCounter & 0xff,
	}
	vec[vectorLen-1] = checksum(vec[:vectorLen-1])
	return vec
}

// SignURL joins an already encoded query onto rawURL and signs the result.
func (s *Signer) SignURL(rawURL, encodedQuery string, now time.Time) Signature {
	return s.Sign(JoinQuery(rawURL, encodedQuery), now)
}

// Sign is the one-shot form of New(userAgent).Sign(urlPath, now).
func Sign(urlPath, userAgent string, now time.Time) (Signature, error) {
	s, err := New(userAgent)
	if err != nil {
		return Signature{}, err
	}
	return s.Sign(urlPath, now), nil
}

// JoinQuery appends an encoded query to rawURL using '?' or '&' as needed.
func JoinQuery(rawURL, encoded string) string {
	switch {
	case encoded == "":
		return rawURL
	case strings.Contains(rawURL, "?"):
		return rawURL + "&" + encoded
	default:
		return rawURL + "?" + encoded
	}
}

func checksum(vec []int) int {
	x := 0
	for _, v := range vec {
		x ^= v
	}
	return x
}

// interleave returns the even-indexed elements followed by the odd-indexed ones.
func interleave(vec []int) []int {
	out := make([]int, 0, len(vec))
	for i := 0; i < len(vec); i += 2 {
		out = append(out, vec[i])
	}
	for i := 1; i < len(vec); i += 2 {
		out = append(out, vec[i])
	}
	return out
}

// encode maps consecutive triples onto four alphabet symbols each. A
// trailing group shorter than three is dropped.
func encode(merged []int) string {
	var b strings.Builder
	b.Grow(len(merged) / 3 * 4)
	for i := 0; i+2 < len(merged); i += 3 {
		x := (merged[i]&0xff)<<16 | (merged[i+1]&0xff)<<8 | merged[i+2]&0xff
		b.WriteByte(Alphabet[x>>18&0x3f])
		b.WriteByte(Alphabet[x>>12&0x3f])
		b.WriteByte(Alphabet[x>>6&0x3f])
		b.WriteByte(Alphabet[x&0x3f])
	}
	return b.String()
}
