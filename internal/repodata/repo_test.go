package repodata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ralt/depcheck/internal/models"
	"github.com/ralt/depcheck/internal/signer"
	"github.com/ralt/depcheck/internal/source"
)

func quiet() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

func fixturePackages() []*models.Package {
	lib := &models.Package{
		Name:    "libfoo",
		Arch:    "x86_64",
		Version: models.MustParseVersion("1:2.0-3.fc39"),
		Provides: []models.Capability{
			models.MustParseCapability("libfoo.so.2()(64bit)"),
			models.MustParseCapability("libfoo(x86-64) = 1:2.0-3.fc39"),
		},
		Files: map[string]models.FileEntry{
			"/usr/lib64/libfoo.so.2": {Kind: models.FileRegular, Digest: "aaaa"},
			"/usr/share/libfoo":      {Kind: models.FileDir},
			"/var/cache/libfoo":      {Kind: models.FileGhost},
		},
	}
	bar := &models.Package{
		Name:    "bar",
		Arch:    "noarch",
		Version: models.MustParseVersion("1.0-1"),
		Requires: []models.Capability{
			models.MustParseCapability("libfoo(x86-64) >= 2.0"),
			models.MustParseCapability("(baz or qux)"),
		},
		Conflicts: []models.Capability{models.MustParseCapability("oldbar < 1.0")},
		Obsoletes: []models.Capability{models.MustParseCapability("bar-legacy")},
		Files: map[string]models.FileEntry{
			"/usr/bin/bar": {Kind: models.FileRegular, Digest: "bbbb"},
		},
	}
	src := &models.Package{
		Name:    "bar",
		Arch:    "src",
		Version: models.MustParseVersion("1.0-1"),
		Source:  true,
	}
	return []*models.Package{lib, bar, src}
}

func writeFixture(t *testing.T, opts WriteOptions) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, WriteRepository(dir, fixturePackages(), opts))
	return dir
}

func load(t *testing.T, spec models.RepoSpec, opts Options) ([]*models.Package, error) {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quiet()
	}
	r, err := New(spec, opts)
	require.NoError(t, err)
	return source.Collect(context.Background(), r)
}

func TestRoundTrip(t *testing.T) {
	for _, compression := range []string{"gz", "zst"} {
		t.Run(compression, func(t *testing.T) {
			dir := writeFixture(t, WriteOptions{Compression: compression})
			pkgs, err := load(t, models.RepoSpec{Name: "base", BaseURL: dir}, Options{})
			require.NoError(t, err)
			require.Len(t, pkgs, 3)

			lib := pkgs[0]
			assert.Equal(t, "libfoo-1:2.0-3.fc39.x86_64", lib.NEVRA())
			assert.Equal(t, "base", lib.Repo)
			assert.Equal(t, "Packages/libfoo-1:2.0-3.fc39.x86_64.rpm", lib.Location)
			require.Len(t, lib.Provides, 2)
			assert.Equal(t, "libfoo(x86-64) = 1:2.0-3.fc39", lib.Provides[1].String())

			// filelists carries no digests
			assert.Equal(t, models.FileEntry{Kind: models.FileRegular}, lib.Files["/usr/lib64/libfoo.so.2"])
			assert.Equal(t, models.FileDir, lib.Files["/usr/share/libfoo"].Kind)
			assert.Equal(t, models.FileGhost, lib.Files["/var/cache/libfoo"].Kind)

			bar := pkgs[1]
			var reqs []string
			for _, r := range bar.Requires {
				reqs = append(reqs, r.String())
			}
			assert.Equal(t, []string{"libfoo(x86-64) >= 2.0", "(baz or qux)"}, reqs)
			assert.Equal(t, "oldbar < 1.0", bar.Conflicts[0].String())
			assert.Equal(t, "bar-legacy", bar.Obsoletes[0].String())

			assert.True(t, pkgs[2].Source)
		})
	}
}

func TestFilelistsExtDigests(t *testing.T) {
	dir := writeFixture(t, WriteOptions{FilelistsExt: true})
	pkgs, err := load(t, models.RepoSpec{Name: "base", BaseURL: "file://" + dir}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "aaaa", pkgs[0].Files["/usr/lib64/libfoo.so.2"].Digest)
	assert.Equal(t, "bbbb", pkgs[1].Files["/usr/bin/bar"].Digest)
}

func TestChecksumMismatch(t *testing.T) {
	dir := writeFixture(t, WriteOptions{})
	matches, err := filepath.Glob(filepath.Join(dir, "repodata", "*-primary.xml.gz"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.NoError(t, os.WriteFile(matches[0], []byte("corrupt"), 0644))

	_, err = load(t, models.RepoSpec{Name: "base", BaseURL: dir}, Options{})
	var cerr *models.CheckError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, models.ErrRepoFetch, cerr.Type)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestUnavailableRepository(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nothing-here")

	_, err := load(t, models.RepoSpec{Name: "gone", BaseURL: missing}, Options{})
	var cerr *models.CheckError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, models.ErrRepoFetch, cerr.Type)

	pkgs, err := load(t, models.RepoSpec{Name: "gone", BaseURL: missing, SkipIfUnavailable: true}, Options{})
	require.NoError(t, err)
	assert.Empty(t, pkgs)
}

func TestNewValidatesSpec(t *testing.T) {
	_, err := New(models.RepoSpec{Name: "x"}, Options{Logger: quiet()})
	assert.Error(t, err)
	_, err = New(models.RepoSpec{Name: "x", BaseURL: "/a", Metalink: "http://b"}, Options{Logger: quiet()})
	assert.Error(t, err)
}

type memCache struct {
	data map[string][]byte
	hits int
}

func (c *memCache) Get(key string) ([]byte, bool, error) {
	d, ok := c.data[key]
	if ok {
		c.hits++
	}
	return d, ok, nil
}

func (c *memCache) Put(key string, data []byte) error {
	c.data[key] = data
	return nil
}

func TestCacheServesMetadata(t *testing.T) {
	dir := writeFixture(t, WriteOptions{})
	cache := &memCache{data: make(map[string][]byte)}
	spec := models.RepoSpec{Name: "base", BaseURL: dir}

	_, err := load(t, spec, Options{Cache: cache})
	require.NoError(t, err)
	assert.Len(t, cache.data, 2)

	// Metadata files are gone, only repomd.xml remains.
	matches, _ := filepath.Glob(filepath.Join(dir, "repodata", "*.xml.gz"))
	for _, m := range matches {
		require.NoError(t, os.Remove(m))
	}
	pkgs, err := load(t, spec, Options{Cache: cache})
	require.NoError(t, err)
	assert.Len(t, pkgs, 3)
	assert.Equal(t, 2, cache.hits)
}

func TestSignedRepository(t *testing.T) {
	entity, err := openpgp.NewEntity("repo", "", "repo@example.org", nil)
	require.NoError(t, err)
	s := signer.NewGPGSignerFromEntity(entity)
	dir := writeFixture(t, WriteOptions{Signer: s})

	// The writer publishes the key next to the signature.
	keyPath := filepath.Join(dir, "repodata", "repomd.xml.key")
	require.FileExists(t, keyPath)

	spec := models.RepoSpec{Name: "signed", BaseURL: dir, GPGCheck: true, GPGKey: keyPath}
	pkgs, err := load(t, spec, Options{})
	require.NoError(t, err)
	assert.Len(t, pkgs, 3)

	// Re-signing with another key must be rejected.
	other, err := openpgp.NewEntity("evil", "", "evil@example.org", nil)
	require.NoError(t, err)
	repomd, err := os.ReadFile(filepath.Join(dir, "repodata", "repomd.xml"))
	require.NoError(t, err)
	sig, err := signer.NewGPGSignerFromEntity(other).SignDetached(repomd)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "repodata", "repomd.xml.asc"), sig, 0644))

	_, err = load(t, spec, Options{})
	var cerr *models.CheckError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, models.ErrSignature, cerr.Type)
}

func serve(t *testing.T, dir string, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	fs := http.FileServer(http.Dir(dir))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			requests.Add(1)
		}
		fs.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPAndMirrors(t *testing.T) {
	dir := writeFixture(t, WriteOptions{})
	srv := serve(t, dir, nil)

	pkgs, err := load(t, models.RepoSpec{Name: "http", BaseURL: srv.URL + "/"}, Options{})
	require.NoError(t, err)
	assert.Len(t, pkgs, 3)

	lists := t.TempDir()
	mirrorlist := filepath.Join(lists, "mirrorlist")
	require.NoError(t, os.WriteFile(mirrorlist, []byte("# mirrors\nhttp://127.0.0.1:1/broken\n"+srv.URL+"\n"), 0644))
	pkgs, err = load(t, models.RepoSpec{Name: "mirrored", Mirrorlist: mirrorlist}, Options{})
	require.NoError(t, err)
	assert.Len(t, pkgs, 3)

	metalinkDoc := `<?xml version="1.0" encoding="utf-8"?>
<metalink version="3.0" xmlns="http://www.metalinker.org/">
  <files>
    <file name="repomd.xml">
      <resources maxconnections="1">
        <url protocol="rsync" type="rsync">rsync://mirror.example.org/fedora/repodata/repomd.xml</url>
        <url protocol="http" type="http">` + srv.URL + `/repodata/repomd.xml</url>
      </resources>
    </file>
  </files>
</metalink>`
	metalinkPath := filepath.Join(lists, "metalink")
	require.NoError(t, os.WriteFile(metalinkPath, []byte(metalinkDoc), 0644))
	pkgs, err = load(t, models.RepoSpec{Name: "meta", Metalink: metalinkPath}, Options{})
	require.NoError(t, err)
	assert.Len(t, pkgs, 3)
}

func TestMirrors(t *testing.T) {
	assert.Equal(t, []string{"http://a/f/39", "http://b/f/39"},
		mirrors([]byte("http://a/f/39\n\n# comment\nhttp://b/f/39\n")))
}

func TestResolveManifestByteRanges(t *testing.T) {
	dir := t.TempDir()
	// Not an RPM: every range fails to parse.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.rpm"), []byte(strings.Repeat("x", 150000)), 0644))

	var requests atomic.Int32
	srv := serve(t, dir, &requests)
	r, err := New(models.RepoSpec{Name: "remote", BaseURL: srv.URL}, Options{Logger: quiet()})
	require.NoError(t, err)
	set, err := NewSet(Options{Logger: quiet()}, r)
	require.NoError(t, err)

	p := &models.Package{Name: "junk", Arch: "x86_64", Repo: "remote", Location: "junk.rpm"}
	_, err = set.ResolveManifest(context.Background(), p)
	require.Error(t, err)
	// 100000 bytes came back full, so a larger range was tried; the second
	// answer was short, so the whole file had been seen.
	assert.Equal(t, int32(2), requests.Load())
}

func TestResolveManifestUnknownRepo(t *testing.T) {
	set, err := NewSet(Options{Logger: quiet()})
	require.NoError(t, err)
	_, err = set.ResolveManifest(context.Background(), &models.Package{Name: "x", Repo: "nowhere"})
	assert.ErrorContains(t, err, "unknown repository")
}

func TestNewSetRejectsDuplicateNames(t *testing.T) {
	a, _ := New(models.RepoSpec{Name: "dup", BaseURL: "/a"}, Options{Logger: quiet()})
	b, _ := New(models.RepoSpec{Name: "dup", BaseURL: "/b"}, Options{Logger: quiet()})
	_, err := NewSet(Options{Logger: quiet()}, a, b)
	assert.Error(t, err)
}

func TestCancelledLoad(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	r, err := New(models.RepoSpec{Name: "slow", BaseURL: srv.URL}, Options{Logger: quiet()})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = source.Collect(ctx, r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
