package models

// RepoSpec describes a repository to load background packages from.
type RepoSpec struct {
	// Name of the repository, for example "fedora-updates" (used in
	// problems and error messages)
	Name string

	// Exactly one of BaseURL, Metalink or Mirrorlist is set. BaseURL may be
	// a local directory, a file:// URL or an http(s) URL.
	BaseURL    string
	Metalink   string
	Mirrorlist string

	// SkipIfUnavailable suppresses download errors for this repository
	SkipIfUnavailable bool

	// Signature checking of repomd.xml
	GPGCheck bool
	GPGKey   string // Path or URL of an armored public key
}
