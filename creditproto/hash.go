package creditproto

import "crypto/sha512"

// Sha512_256 hashes data with SHA-512/256, the digest the reset protocol
// (§4.4) and receipt binding use throughout the source.
func Sha512_256(data []byte) HashResult {
	return sha512.Sum512_256(data)
}

// Sha512_256Concat hashes the concatenation of several byte slices without
// an intermediate allocation-heavy append, mirroring the handshake's
// prev_hash computation over a multi-field message (§4.7).
func Sha512_256Concat(parts ...[]byte) HashResult {
	h := sha512.New512_256()
	for _, p := range parts {
		h.Write(p)
	}
	var out HashResult
	copy(out[:], h.Sum(nil))
	return out
}
