package repodata

import (
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/ralt/depcheck/internal/models"
)

// XML structures for reading repodata. Element names are matched without
// namespace, so <rpm:provides> and <provides> decode alike.

type repomd struct {
	XMLName  xml.Name     `xml:"repomd"`
	Revision string       `xml:"revision"`
	Data     []repomdData `xml:"data"`
}

type repomdData struct {
	Type         string         `xml:"type,attr"`
	Checksum     repomdChecksum `xml:"checksum"`
	OpenChecksum repomdChecksum `xml:"open-checksum"`
	Location     repomdLocation `xml:"location"`
	Size         int64          `xml:"size"`
}

type repomdChecksum struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type repomdLocation struct {
	Href string `xml:"href,attr"`
	Base string `xml:"base,attr"`
}

func (r *repomd) record(kind string) (repomdData, bool) {
	for _, d := range r.Data {
		if d.Type == kind {
			return d, true
		}
	}
	return repomdData{}, false
}

type primaryPackage struct {
	Type     string         `xml:"type,attr"`
	Name     string         `xml:"name"`
	Arch     string         `xml:"arch"`
	Version  xmlVersion     `xml:"version"`
	Checksum repomdChecksum `xml:"checksum"`
	Location repomdLocation `xml:"location"`
	Format   primaryFormat  `xml:"format"`
}

type xmlVersion struct {
	Epoch string `xml:"epoch,attr"`
	Ver   string `xml:"ver,attr"`
	Rel   string `xml:"rel,attr"`
}

type primaryFormat struct {
	SourceRPM   string     `xml:"sourcerpm"`
	HeaderRange xmlRange   `xml:"header-range"`
	Provides    []xmlEntry `xml:"provides>entry"`
	Requires    []xmlEntry `xml:"requires>entry"`
	Conflicts   []xmlEntry `xml:"conflicts>entry"`
	Obsoletes   []xmlEntry `xml:"obsoletes>entry"`
	Files       []xmlFile  `xml:"file"`
}

type xmlRange struct {
	Start int64 `xml:"start,attr"`
	End   int64 `xml:"end,attr"`
}

type xmlEntry struct {
	Name  string `xml:"name,attr"`
	Flags string `xml:"flags,attr"`
	Epoch string `xml:"epoch,attr"`
	Ver   string `xml:"ver,attr"`
	Rel   string `xml:"rel,attr"`
}

type xmlFile struct {
	Type  string `xml:"type,attr"`
	Hash  string `xml:"hash,attr"`
	Value string `xml:",chardata"`
}

type filelistsPackage struct {
	PkgID string    `xml:"pkgid,attr"`
	Name  string    `xml:"name,attr"`
	Arch  string    `xml:"arch,attr"`
	Files []xmlFile `xml:"file"`
}

func (v xmlVersion) version() (models.Version, error) {
	out := models.Version{Version: v.Ver, Release: v.Rel}
	if v.Epoch != "" {
		e, err := strconv.Atoi(v.Epoch)
		if err != nil {
			return out, fmt.Errorf("invalid epoch %q", v.Epoch)
		}
		out.Epoch = e
	}
	return out, nil
}

// toPackage converts a primary record and its filelists entries.
func (p *primaryPackage) toPackage(repo string, files []xmlFile) (*models.Package, error) {
	ver, err := p.Version.version()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}
	pkg := &models.Package{
		Name:     p.Name,
		Arch:     p.Arch,
		Version:  ver,
		Source:   p.Arch == "src" || p.Arch == "nosrc",
		Repo:     repo,
		Location: p.Location.Href,
		Checksum: p.Checksum.Value,
	}

	sets := []struct {
		entries []xmlEntry
		dst     *[]models.Capability
	}{
		{p.Format.Provides, &pkg.Provides},
		{p.Format.Requires, &pkg.Requires},
		{p.Format.Conflicts, &pkg.Conflicts},
		{p.Format.Obsoletes, &pkg.Obsoletes},
	}
	for _, s := range sets {
		for _, e := range s.entries {
			c, err := models.CapabilityFromEntry(e.Name, e.Flags, e.Epoch, e.Ver, e.Rel)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", pkg.NEVRA(), err)
			}
			*s.dst = append(*s.dst, c)
		}
	}

	// primary.xml only carries the most commonly required files; the
	// filelists record, when present, is complete.
	if files == nil {
		files = p.Format.Files
	}
	pkg.Files = make(map[string]models.FileEntry, len(files))
	for _, f := range files {
		pkg.Files[f.Value] = f.entry()
	}
	return pkg, nil
}

func (f xmlFile) entry() models.FileEntry {
	switch f.Type {
	case "dir":
		return models.FileEntry{Kind: models.FileDir}
	case "ghost":
		return models.FileEntry{Kind: models.FileGhost}
	default:
		return models.FileEntry{Kind: models.FileRegular, Digest: f.Hash}
	}
}
