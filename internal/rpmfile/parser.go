// Package rpmfile reads package metadata from RPM files.
package rpmfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sassoftware/go-rpmutils"

	"github.com/ralt/depcheck/internal/models"
	"github.com/ralt/depcheck/internal/utils"
)

// rpm file flag and mode bits
const (
	fileFlagGhost = 1 << 6

	modeTypeMask = 0170000
	modeDir      = 0040000
	modeSymlink  = 0120000
)

// header is the part of *rpmutils.RpmHeader the parser reads.
type header interface {
	Get(tag int) (interface{}, error)
	GetFiles() ([]rpmutils.FileInfo, error)
}

// fileInfo is the part of rpmutils.FileInfo the parser reads.
type fileInfo interface {
	Name() string
	Digest() string
	Mode() int
	Linkname() string
	Flags() int
}

// ParsePackage parses an RPM file into a candidate package
func ParsePackage(path string) (*models.Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, models.NewCheckError(models.ErrFileOp, path, err)
	}
	defer f.Close()

	pkg, err := Read(f)
	if err != nil {
		return nil, models.NewCheckError(models.ErrPackageParse, path, err)
	}

	// Rewind to checksum the whole file
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, models.NewCheckError(models.ErrFileOp, path, err)
	}
	sum, err := utils.CalculateChecksum(f, "sha256")
	if err != nil {
		return nil, models.NewCheckError(models.ErrFileOp, path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	pkg.Location = abs
	pkg.Checksum = sum.Value
	return pkg, nil
}

// Read parses the lead, signature and header of an RPM. Only the header is
// needed, so r may hold a prefix of the file.
func Read(r io.Reader) (*models.Package, error) {
	rpm, err := rpmutils.ReadRpm(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read RPM: %w", err)
	}
	return FromHeader(rpm.Header)
}

// FromHeader converts a parsed RPM header into a package.
func FromHeader(h header) (*models.Package, error) {
	name := getStringTag(h, rpmutils.NAME)
	if name == "" {
		return nil, fmt.Errorf("RPM header has no name")
	}
	version := models.Version{
		Version: getStringTag(h, rpmutils.VERSION),
		Release: getStringTag(h, rpmutils.RELEASE),
	}
	if epochs := getIntSliceTag(h, rpmutils.EPOCH); len(epochs) > 0 {
		version.Epoch = epochs[0]
	}

	pkg := &models.Package{
		Name:    name,
		Arch:    getStringTag(h, rpmutils.ARCH),
		Version: version,
	}
	// Binary packages record the source package they were built from
	if getStringTag(h, rpmutils.SOURCERPM) == "" {
		pkg.Source = true
		pkg.Arch = "src"
	}

	var err error
	if pkg.Provides, err = capabilities(h, rpmutils.PROVIDENAME, rpmutils.PROVIDEFLAGS, rpmutils.PROVIDEVERSION); err != nil {
		return nil, fmt.Errorf("%s: provides: %w", name, err)
	}
	if pkg.Requires, err = capabilities(h, rpmutils.REQUIRENAME, rpmutils.REQUIREFLAGS, rpmutils.REQUIREVERSION); err != nil {
		return nil, fmt.Errorf("%s: requires: %w", name, err)
	}
	if pkg.Conflicts, err = capabilities(h, rpmutils.CONFLICTNAME, rpmutils.CONFLICTFLAGS, rpmutils.CONFLICTVERSION); err != nil {
		return nil, fmt.Errorf("%s: conflicts: %w", name, err)
	}
	if pkg.Obsoletes, err = capabilities(h, rpmutils.OBSOLETENAME, rpmutils.OBSOLETEFLAGS, rpmutils.OBSOLETEVERSION); err != nil {
		return nil, fmt.Errorf("%s: obsoletes: %w", name, err)
	}
	pkg.Requires = dedupe(pkg.Requires)

	files, err := h.GetFiles()
	if err != nil {
		return nil, fmt.Errorf("%s: files: %w", name, err)
	}
	pkg.Files = make(map[string]models.FileEntry, len(files))
	for _, fi := range files {
		pkg.Files[fi.Name()] = fileEntry(fi)
	}
	return pkg, nil
}

func fileEntry(fi fileInfo) models.FileEntry {
	switch {
	case fi.Flags()&fileFlagGhost != 0:
		return models.FileEntry{Kind: models.FileGhost}
	case fi.Mode()&modeTypeMask == modeDir:
		return models.FileEntry{Kind: models.FileDir}
	case fi.Mode()&modeTypeMask == modeSymlink:
		return models.FileEntry{Kind: models.FileSymlink, LinkTarget: fi.Linkname()}
	default:
		return models.FileEntry{Kind: models.FileRegular, Digest: fi.Digest()}
	}
}

// capabilities zips the name, flags and version arrays of a dependency tag
// set.
func capabilities(h header, nameTag, flagsTag, versionTag int) ([]models.Capability, error) {
	names := getStringSliceTag(h, nameTag)
	if len(names) == 0 {
		return nil, nil
	}
	flags := getIntSliceTag(h, flagsTag)
	versions := getStringSliceTag(h, versionTag)
	if len(flags) != len(names) || len(versions) != len(names) {
		return nil, fmt.Errorf("%d names, %d flags and %d versions", len(names), len(flags), len(versions))
	}

	out := make([]models.Capability, 0, len(names))
	for i, n := range names {
		c, err := models.NewCapability(n, flags[i], versions[i])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// dedupe drops repeated requirements; rpm records one entry per scriptlet
// phase.
func dedupe(caps []models.Capability) []models.Capability {
	seen := make(map[string]bool, len(caps))
	out := caps[:0]
	for _, c := range caps {
		k := c.String()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

// getStringTag safely gets a string tag from RPM
func getStringTag(h header, tag int) string {
	val, err := h.Get(tag)
	if err != nil {
		return ""
	}

	switch v := val.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// getStringSliceTag gets a string array tag. Entries are kept even when
// empty so they stay aligned with the matching flags array.
func getStringSliceTag(h header, tag int) []string {
	val, err := h.Get(tag)
	if err != nil {
		return nil
	}
	switch v := val.(type) {
	case []string:
		out := make([]string, len(v))
		for i, s := range v {
			out[i] = strings.TrimSpace(s)
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}

// getIntSliceTag gets an integer array tag whatever width the header
// stored it with.
func getIntSliceTag(h header, tag int) []int {
	val, err := h.Get(tag)
	if err != nil {
		return nil
	}
	switch v := val.(type) {
	case []int:
		return v
	case []int32:
		out := make([]int, len(v))
		for i, n := range v {
			out[i] = int(n)
		}
		return out
	case []uint32:
		out := make([]int, len(v))
		for i, n := range v {
			out[i] = int(n)
		}
		return out
	case []int64:
		out := make([]int, len(v))
		for i, n := range v {
			out[i] = int(n)
		}
		return out
	case []uint64:
		out := make([]int, len(v))
		for i, n := range v {
			out[i] = int(n)
		}
		return out
	case int:
		return []int{v}
	}
	return nil
}
