package source

import (
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint identifies the exact content of one source file.
type Fingerprint struct {
	Digest string
	Size   int64
}

// Fingerprint hashes the file with BLAKE2b-256.
func (s Source) Fingerprint() (Fingerprint, error) {
	f, err := s.Open()
	if err != nil {
		return Fingerprint{}, fmt.Errorf("open %s: %w", s.Path, err)
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return Fingerprint{}, err
	}
	n, err := io.Copy(h, f)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("hash %s: %w", s.Path, err)
	}
	return Fingerprint{Digest: hex.EncodeToString(h.Sum(nil)), Size: n}, nil
}
