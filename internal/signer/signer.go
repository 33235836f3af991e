package signer

// Signer signs repository metadata. depcheck only signs when writing test
// repositories; checking a repository needs a Verifier.
type Signer interface {
	// SignDetached creates an armored detached signature (repomd.xml.asc)
	SignDetached(data []byte) ([]byte, error)

	// GetPublicKey returns the armored public key
	GetPublicKey() ([]byte, error)
}

// Verifier checks detached signatures of repository metadata
type Verifier interface {
	// VerifyDetached checks an armored detached signature over data
	VerifyDetached(data, signature []byte) error
}
