package repodata

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ralt/depcheck/internal/models"
	"github.com/ralt/depcheck/internal/signer"
	"github.com/ralt/depcheck/internal/utils"
)

// WriteOptions configures WriteRepository.
type WriteOptions struct {
	// Signer signs repomd.xml when set; its public key is written next to
	// the signature as repomd.xml.key
	Signer signer.Signer
	// Compression of the metadata files: "gz" (default) or "zst"
	Compression string
	// FilelistsExt writes file digests to a filelists_ext record
	FilelistsExt bool
}

// WriteRepository writes repodata describing pkgs under dir, the way
// createrepo does. It is used to build repositories for tests and to
// snapshot a loaded package set.
func WriteRepository(dir string, pkgs []*models.Package, opts WriteOptions) error {
	repodataDir := filepath.Join(dir, "repodata")
	if err := utils.EnsureDir(repodataDir); err != nil {
		return err
	}
	ext := opts.Compression
	if ext == "" {
		ext = "gz"
	}

	primaryXML, err := generatePrimaryXML(pkgs)
	if err != nil {
		return fmt.Errorf("failed to generate primary.xml: %w", err)
	}
	filelistsXML, err := generateFilelistsXML(pkgs, false)
	if err != nil {
		return fmt.Errorf("failed to generate filelists.xml: %w", err)
	}

	var records []repomdRecord
	add := func(kind string, data []byte) error {
		rec, err := writeRecord(dir, kind, data, ext)
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", kind, err)
		}
		records = append(records, rec)
		return nil
	}
	if err := add("primary", primaryXML); err != nil {
		return err
	}
	if err := add("filelists", filelistsXML); err != nil {
		return err
	}
	if opts.FilelistsExt {
		extXML, err := generateFilelistsXML(pkgs, true)
		if err != nil {
			return fmt.Errorf("failed to generate filelists-ext.xml: %w", err)
		}
		if err := add("filelists_ext", extXML); err != nil {
			return err
		}
	}

	repomdXML, err := generateRepomdXML(records)
	if err != nil {
		return fmt.Errorf("failed to generate repomd.xml: %w", err)
	}
	if err := utils.WriteFileAtomic(filepath.Join(repodataDir, "repomd.xml"), repomdXML, 0644); err != nil {
		return fmt.Errorf("failed to write repomd.xml: %w", err)
	}

	if opts.Signer != nil {
		signature, err := opts.Signer.SignDetached(repomdXML)
		if err != nil {
			return fmt.Errorf("failed to sign repomd.xml: %w", err)
		}
		if err := utils.WriteFile(filepath.Join(repodataDir, "repomd.xml.asc"), signature, 0644); err != nil {
			return fmt.Errorf("failed to write repomd.xml.asc: %w", err)
		}
		pub, err := opts.Signer.GetPublicKey()
		if err != nil {
			return fmt.Errorf("failed to export public key: %w", err)
		}
		if err := utils.WriteFile(filepath.Join(repodataDir, "repomd.xml.key"), pub, 0644); err != nil {
			return fmt.Errorf("failed to write repomd.xml.key: %w", err)
		}
	}

	logrus.Debugf("Wrote repodata for %d packages to %s", len(pkgs), dir)
	return nil
}

type repomdRecord struct {
	kind           string
	href           string
	checksum       string
	openChecksum   string
	size, openSize int64
}

func writeRecord(dir, kind string, data []byte, ext string) (repomdRecord, error) {
	var compressed []byte
	var err error
	switch ext {
	case "zst":
		compressed, err = utils.ZstdCompress(data)
	default:
		ext = "gz"
		compressed, err = utils.GzipCompress(data)
	}
	if err != nil {
		return repomdRecord{}, err
	}

	sum, err := digest(compressed)
	if err != nil {
		return repomdRecord{}, err
	}
	openSum, err := digest(data)
	if err != nil {
		return repomdRecord{}, err
	}

	name := kind
	if kind == "filelists_ext" {
		name = "filelists-ext"
	}
	href := path.Join("repodata", fmt.Sprintf("%s-%s.xml.%s", sum, name, ext))
	if err := utils.WriteFile(filepath.Join(dir, filepath.FromSlash(href)), compressed, 0644); err != nil {
		return repomdRecord{}, err
	}
	return repomdRecord{
		kind:         kind,
		href:         href,
		checksum:     sum,
		openChecksum: openSum,
		size:         int64(len(compressed)),
		openSize:     int64(len(data)),
	}, nil
}

func digest(data []byte) (string, error) {
	sum, err := utils.CalculateChecksum(bytes.NewReader(data), "sha256")
	if err != nil {
		return "", err
	}
	return sum.Value, nil
}

// XML structures for writing metadata. The rpm: prefixed names are
// written literally, as createrepo does.

type metadata struct {
	XMLName       xml.Name `xml:"metadata"`
	Xmlns         string   `xml:"xmlns,attr"`
	XmlnsRpm      string   `xml:"xmlns:rpm,attr"`
	PackagesCount int      `xml:"packages,attr"`
	Packages      []xmlPkg `xml:"package"`
}

type xmlPkg struct {
	Type     string         `xml:"type,attr"`
	Name     string         `xml:"name"`
	Arch     string         `xml:"arch"`
	Version  xmlVersion     `xml:"version"`
	Checksum xmlChecksum    `xml:"checksum"`
	Location repomdLocation `xml:"location"`
	Format   xmlFormat      `xml:"format"`
}

type xmlChecksum struct {
	Type  string `xml:"type,attr"`
	Pkgid string `xml:"pkgid,attr"`
	Value string `xml:",chardata"`
}

type xmlFormat struct {
	SourceRPM string        `xml:"rpm:sourcerpm,omitempty"`
	Provides  *xmlEntryList `xml:"rpm:provides,omitempty"`
	Requires  *xmlEntryList `xml:"rpm:requires,omitempty"`
	Conflicts *xmlEntryList `xml:"rpm:conflicts,omitempty"`
	Obsoletes *xmlEntryList `xml:"rpm:obsoletes,omitempty"`
}

type xmlEntryList struct {
	Entries []xmlOutEntry `xml:"rpm:entry"`
}

type xmlOutEntry struct {
	Name  string `xml:"name,attr"`
	Flags string `xml:"flags,attr,omitempty"`
	Epoch string `xml:"epoch,attr,omitempty"`
	Ver   string `xml:"ver,attr,omitempty"`
	Rel   string `xml:"rel,attr,omitempty"`
}

type filelists struct {
	XMLName       xml.Name
	Xmlns         string            `xml:"xmlns,attr"`
	PackagesCount int               `xml:"packages,attr"`
	Packages      []xmlFilelistsPkg `xml:"package"`
}

type xmlFilelistsPkg struct {
	PkgID   string       `xml:"pkgid,attr"`
	Name    string       `xml:"name,attr"`
	Arch    string       `xml:"arch,attr"`
	Version xmlVersion   `xml:"version"`
	Files   []xmlOutFile `xml:"file"`
}

type xmlOutFile struct {
	Type  string `xml:"type,attr,omitempty"`
	Hash  string `xml:"hash,attr,omitempty"`
	Value string `xml:",chardata"`
}

func generatePrimaryXML(pkgs []*models.Package) ([]byte, error) {
	var xmlPackages []xmlPkg

	for _, pkg := range pkgs {
		p := xmlPkg{
			Type:    "rpm",
			Name:    pkg.Name,
			Arch:    pkg.Arch,
			Version: outVersion(pkg.Version),
			Checksum: xmlChecksum{
				Type:  "sha256",
				Pkgid: "YES",
				Value: pkgID(pkg),
			},
			Location: repomdLocation{Href: location(pkg)},
			Format: xmlFormat{
				Provides:  entryList(pkg.Provides),
				Requires:  entryList(pkg.Requires),
				Conflicts: entryList(pkg.Conflicts),
				Obsoletes: entryList(pkg.Obsoletes),
			},
		}
		if !pkg.Source {
			p.Format.SourceRPM = fmt.Sprintf("%s-%s-%s.src.rpm", pkg.Name, pkg.Version.Version, pkg.Version.Release)
		}
		xmlPackages = append(xmlPackages, p)
	}

	meta := metadata{
		Xmlns:         "http://linux.duke.edu/metadata/common",
		XmlnsRpm:      "http://linux.duke.edu/metadata/rpm",
		PackagesCount: len(pkgs),
		Packages:      xmlPackages,
	}

	xmlBytes, err := xml.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, err
	}

	return append([]byte(xml.Header), xmlBytes...), nil
}

func generateFilelistsXML(pkgs []*models.Package, withDigests bool) ([]byte, error) {
	fl := filelists{
		XMLName:       xml.Name{Local: "filelists"},
		Xmlns:         "http://linux.duke.edu/metadata/filelists",
		PackagesCount: len(pkgs),
	}
	if withDigests {
		fl.XMLName = xml.Name{Local: "filelists-ext"}
		fl.Xmlns = "http://linux.duke.edu/metadata/filelists-ext"
	}

	for _, pkg := range pkgs {
		p := xmlFilelistsPkg{
			PkgID:   pkgID(pkg),
			Name:    pkg.Name,
			Arch:    pkg.Arch,
			Version: outVersion(pkg.Version),
		}
		paths := make([]string, 0, len(pkg.Files))
		for path := range pkg.Files {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		for _, path := range paths {
			e := pkg.Files[path]
			f := xmlOutFile{Value: path}
			switch e.Kind {
			case models.FileDir:
				f.Type = "dir"
			case models.FileGhost:
				f.Type = "ghost"
			default:
				if withDigests {
					f.Hash = e.Digest
				}
			}
			p.Files = append(p.Files, f)
		}
		fl.Packages = append(fl.Packages, p)
	}

	xmlBytes, err := xml.MarshalIndent(fl, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), xmlBytes...), nil
}

type repomdOut struct {
	XMLName  xml.Name        `xml:"repomd"`
	Xmlns    string          `xml:"xmlns,attr"`
	XmlnsRpm string          `xml:"xmlns:rpm,attr"`
	Revision int64           `xml:"revision"`
	Data     []repomdOutData `xml:"data"`
}

type repomdOutData struct {
	Type         string         `xml:"type,attr"`
	Checksum     repomdChecksum `xml:"checksum"`
	OpenChecksum repomdChecksum `xml:"open-checksum"`
	Location     struct {
		Href string `xml:"href,attr"`
	} `xml:"location"`
	Timestamp int64 `xml:"timestamp"`
	Size      int64 `xml:"size"`
	OpenSize  int64 `xml:"open-size"`
}

func generateRepomdXML(records []repomdRecord) ([]byte, error) {
	now := time.Now().Unix()
	md := repomdOut{
		Xmlns:    "http://linux.duke.edu/metadata/repo",
		XmlnsRpm: "http://linux.duke.edu/metadata/rpm",
		Revision: now,
	}
	for _, r := range records {
		d := repomdOutData{
			Type:         r.kind,
			Checksum:     repomdChecksum{Type: "sha256", Value: r.checksum},
			OpenChecksum: repomdChecksum{Type: "sha256", Value: r.openChecksum},
			Timestamp:    now,
			Size:         r.size,
			OpenSize:     r.openSize,
		}
		d.Location.Href = r.href
		md.Data = append(md.Data, d)
	}

	xmlBytes, err := xml.MarshalIndent(md, "", "  ")
	if err != nil {
		return nil, err
	}

	return append([]byte(xml.Header), xmlBytes...), nil
}

func outVersion(v models.Version) xmlVersion {
	return xmlVersion{Epoch: strconv.Itoa(v.Epoch), Ver: v.Version, Rel: v.Release}
}

func entryList(caps []models.Capability) *xmlEntryList {
	if len(caps) == 0 {
		return nil
	}
	l := &xmlEntryList{}
	for _, c := range caps {
		e := xmlOutEntry{Name: c.String()}
		if c.Rich == nil {
			e.Name = c.Name
			if c.Versioned() {
				e.Flags = c.Op.Flags()
				e.Epoch = strconv.Itoa(c.Version.Epoch)
				e.Ver = c.Version.Version
				e.Rel = c.Version.Release
			}
		}
		l.Entries = append(l.Entries, e)
	}
	return l
}

// pkgID is the package checksum, or a stable stand-in derived from the
// NEVRA for packages that were never read from a file.
func pkgID(p *models.Package) string {
	if p.Checksum != "" {
		return p.Checksum
	}
	sum, _ := digest([]byte(p.NEVRA()))
	return sum
}

func location(p *models.Package) string {
	if p.Location != "" && !filepath.IsAbs(p.Location) {
		return p.Location
	}
	return "Packages/" + p.NEVRA() + ".rpm"
}
