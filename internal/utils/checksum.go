package utils

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// Checksum is the digest and size of a file
type Checksum struct {
	Type  string
	Value string
	Size  int64
}

// NewHash returns a hash for a repodata checksum type. "sha" is the
// historical name of sha1.
func NewHash(hashType string) (hash.Hash, error) {
	switch strings.ToLower(hashType) {
	case "md5":
		return md5.New(), nil
	case "sha", "sha1":
		return sha1.New(), nil
	case "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported checksum type %q", hashType)
	}
}

// CalculateChecksum streams r through the given hash
func CalculateChecksum(r io.Reader, hashType string) (*Checksum, error) {
	h, err := NewHash(hashType)
	if err != nil {
		return nil, err
	}
	n, err := io.Copy(h, r)
	if err != nil {
		return nil, err
	}
	return &Checksum{Type: hashType, Value: hex.EncodeToString(h.Sum(nil)), Size: n}, nil
}

// CalculateFileChecksum calculates the checksum of a file
func CalculateFileChecksum(path, hashType string) (*Checksum, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return CalculateChecksum(f, hashType)
}

// VerifyChecksum checks data against an expected hex digest
func VerifyChecksum(data []byte, hashType, expected string) error {
	h, err := NewHash(hashType)
	if err != nil {
		return err
	}
	h.Write(data)
	if got := hex.EncodeToString(h.Sum(nil)); !strings.EqualFold(got, expected) {
		return fmt.Errorf("%s checksum mismatch: expected %s, got %s", hashType, expected, got)
	}
	return nil
}
