package repodata

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ralt/depcheck/internal/utils"
)

// Fetcher downloads repository files from local directories, file:// URLs
// and http(s) URLs.
type Fetcher struct {
	Client *http.Client
	Log    logrus.FieldLogger
}

// NewFetcher returns a Fetcher with a default HTTP client.
func NewFetcher(log logrus.FieldLogger) *Fetcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Fetcher{Client: &http.Client{Timeout: 5 * time.Minute}, Log: log}
}

// Get downloads the whole file at location.
func (f *Fetcher) Get(ctx context.Context, location string) ([]byte, error) {
	return f.GetRange(ctx, location, 0)
}

// GetRange downloads the first end bytes of location, or all of it when
// end is zero. Servers that ignore the range return the whole file, which
// is accepted.
func (f *Fetcher) GetRange(ctx context.Context, location string, end int64) ([]byte, error) {
	if path, ok := localPath(location); ok {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		var r io.Reader = file
		if end > 0 {
			r = io.LimitReader(file, end)
		}
		return io.ReadAll(r)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	if end > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", end-1))
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, fmt.Errorf("GET %s: %s", location, resp.Status)
	}
	f.Log.WithFields(logrus.Fields{"url": location, "status": resp.StatusCode}).Debug("Downloaded")
	return io.ReadAll(resp.Body)
}

// localPath maps a directory path or file:// URL to a filesystem path.
func localPath(location string) (string, bool) {
	if strings.HasPrefix(location, "file://") {
		u, err := url.Parse(location)
		if err != nil {
			return strings.TrimPrefix(location, "file://"), true
		}
		return u.Path, true
	}
	if utils.IsLocalPath(location) {
		return filepath.Clean(location), true
	}
	return "", false
}

// join appends a repository-relative href to a base URL or directory.
func join(base, href string) string {
	if path, ok := localPath(base); ok && !strings.HasPrefix(base, "file://") {
		return filepath.Join(path, filepath.FromSlash(href))
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(href, "/")
}

type metalink struct {
	XMLName xml.Name       `xml:"metalink"`
	Files   []metalinkFile `xml:"files>file"`
}

type metalinkFile struct {
	Name string        `xml:"name,attr"`
	URLs []metalinkURL `xml:"resources>url"`
}

type metalinkURL struct {
	Protocol string `xml:"protocol,attr"`
	Value    string `xml:",chardata"`
}

// mirrors resolves a metalink or mirrorlist document into candidate base
// URLs. A metalink lists repomd.xml locations; a mirrorlist is one base URL
// per line.
func mirrors(doc []byte) []string {
	var ml metalink
	if err := xml.Unmarshal(doc, &ml); err == nil && len(ml.Files) > 0 {
		var out []string
		for _, f := range ml.Files {
			if f.Name != "repomd.xml" {
				continue
			}
			for _, u := range f.URLs {
				if u.Protocol != "" && u.Protocol != "http" && u.Protocol != "https" {
					continue
				}
				v := strings.TrimSpace(u.Value)
				out = append(out, strings.TrimSuffix(v, "/repodata/repomd.xml"))
			}
		}
		return out
	}

	var out []string
	sc := bufio.NewScanner(bytes.NewReader(doc))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
