package models

import "fmt"

// ErrorType represents different categories of fatal errors
type ErrorType int

const (
	ErrPackageParse ErrorType = iota
	ErrRepoFetch
	ErrDuplicateCandidate
	ErrSolver
	ErrInvalidConfig
	ErrFileOp
	ErrSignature
	ErrCache
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrPackageParse:
		return "PackageParse"
	case ErrRepoFetch:
		return "RepoFetch"
	case ErrDuplicateCandidate:
		return "DuplicateCandidate"
	case ErrSolver:
		return "Solver"
	case ErrInvalidConfig:
		return "InvalidConfig"
	case ErrFileOp:
		return "FileOp"
	case ErrSignature:
		return "Signature"
	case ErrCache:
		return "Cache"
	default:
		return "Unknown"
	}
}

// CheckError is a fatal error: an input the checker cannot reason about.
// It is never turned into a Problem.
type CheckError struct {
	Type    ErrorType
	Package string
	Err     error
}

// Error implements the error interface
func (e *CheckError) Error() string {
	if e.Package != "" {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Package, e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.Type, e.Err)
}

// Unwrap returns the wrapped error
func (e *CheckError) Unwrap() error {
	return e.Err
}

// NewCheckError wraps err as a fatal error of the given type.
func NewCheckError(t ErrorType, pkg string, err error) *CheckError {
	return &CheckError{Type: t, Package: pkg, Err: err}
}
