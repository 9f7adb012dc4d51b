package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// Digest is a lowercase hex SHA-256 digest of a file's content.
// Two files are considered identical exactly when their digests and sizes
// match; modification times are never consulted.
type Digest string

// DigestBytes computes the content digest of data.
// The empty input has a well-defined digest.
func DigestBytes(data []byte) Digest {
	sum := sha256.Sum256(data)
	return Digest(hex.EncodeToString(sum[:]))
}

// DigestReader consumes r to EOF and returns the content digest together
// with the number of bytes read.
func DigestReader(r io.Reader) (Digest, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return Digest(hex.EncodeToString(h.Sum(nil))), n, nil
}
