package signer

import (
	"bytes"
	"crypto"
	"errors"
	"fmt"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

// GPGSigner implements Signer using an OpenPGP private key
type GPGSigner struct {
	entity *openpgp.Entity
}

// NewGPGSigner creates a new GPG signer from a private key file
func NewGPGSigner(keyPath, passphrase string) (*GPGSigner, error) {
	if keyPath == "" {
		return nil, errors.New("key path is empty")
	}
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	keyring, err := parseKeyRing(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", keyPath, err)
	}

	entity := keyring[0]
	if entity.PrivateKey == nil {
		return nil, fmt.Errorf("%s holds no private key", keyPath)
	}
	if passphrase != "" {
		if err := unlock(entity, []byte(passphrase)); err != nil {
			return nil, err
		}
	}
	return &GPGSigner{entity: entity}, nil
}

// NewGPGSignerFromEntity wraps an already loaded entity
func NewGPGSignerFromEntity(entity *openpgp.Entity) *GPGSigner {
	return &GPGSigner{entity: entity}
}

// unlock decrypts the primary key and every subkey that is encrypted.
func unlock(entity *openpgp.Entity, passphrase []byte) error {
	keys := []*packet.PrivateKey{entity.PrivateKey}
	for _, sub := range entity.Subkeys {
		keys = append(keys, sub.PrivateKey)
	}
	for _, k := range keys {
		if k == nil || !k.Encrypted {
			continue
		}
		if err := k.Decrypt(passphrase); err != nil {
			return fmt.Errorf("failed to decrypt private key %s: %w", k.KeyIdString(), err)
		}
	}
	return nil
}

// SignDetached returns an armored detached signature, the content of
// repomd.xml.asc.
func (s *GPGSigner) SignDetached(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	cfg := &packet.Config{DefaultHash: crypto.SHA512}
	if err := openpgp.ArmoredDetachSign(&buf, s.entity, bytes.NewReader(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to create detached signature: %w", err)
	}
	return buf.Bytes(), nil
}

// GetPublicKey returns the public key in armored format
func (s *GPGSigner) GetPublicKey() ([]byte, error) {
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return nil, err
	}
	if err := s.entity.Serialize(w); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GPGVerifier implements Verifier against a public keyring
type GPGVerifier struct {
	keyring openpgp.EntityList
}

// NewGPGVerifier parses an armored or binary public key, as found at a
// repository's gpgkey location.
func NewGPGVerifier(key []byte) (*GPGVerifier, error) {
	keyring, err := parseKeyRing(key)
	if err != nil {
		return nil, err
	}
	return &GPGVerifier{keyring: keyring}, nil
}

// VerifyDetached checks an armored detached signature over data
func (v *GPGVerifier) VerifyDetached(data, signature []byte) error {
	_, err := openpgp.CheckArmoredDetachedSignature(v.keyring, bytes.NewReader(data), bytes.NewReader(signature), nil)
	if err != nil {
		return fmt.Errorf("bad signature: %w", err)
	}
	return nil
}

// parseKeyRing accepts armored keys first, then binary ones.
func parseKeyRing(data []byte) (openpgp.EntityList, error) {
	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		keyring, err = openpgp.ReadKeyRing(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to read key: %w", err)
		}
	}
	if len(keyring) == 0 {
		return nil, errors.New("no keys found")
	}
	return keyring, nil
}
