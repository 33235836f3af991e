package repodata

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/ralt/depcheck/internal/models"
)

// System configuration locations.
const (
	YumMainConfig = "/etc/yum.conf"
	YumReposGlob  = "/etc/yum.repos.d/*.repo"
	DNFVarsDir    = "/etc/dnf/vars"
	OSReleaseFile = "/etc/os-release"
)

var baseArches = map[string]string{
	"i386": "i386", "i486": "i386", "i586": "i386", "i686": "i386", "athlon": "i386",
	"x86_64": "x86_64", "amd64": "x86_64",
	"aarch64": "aarch64", "arm64": "aarch64",
	"armv7hl": "armhfp", "armv7l": "armhfp",
	"ppc64le": "ppc64le", "ppc64": "ppc64",
	"s390x": "s390x", "riscv64": "riscv64",
}

// YumVars returns the variables substituted in repository definitions:
// arch and basearch from arch, releasever from os-release, plus any
// variables defined in varsDir. Unknown values are left as the literal
// variable so the resulting URL fails visibly.
func YumVars(arch, osRelease, varsDir string) map[string]string {
	vars := map[string]string{
		"arch":       "$arch",
		"basearch":   "$basearch",
		"releasever": "$releasever",
	}
	if arch != "" {
		vars["arch"] = arch
		if b, ok := baseArches[arch]; ok {
			vars["basearch"] = b
		} else {
			vars["basearch"] = arch
		}
	}

	if f, err := ini.LoadSources(ini.LoadOptions{Loose: true}, osRelease); err == nil {
		if v := f.Section("").Key("VERSION_ID").String(); v != "" {
			vars["releasever"] = v
		}
	}

	if entries, err := os.ReadDir(varsDir); err == nil {
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			data, err := os.ReadFile(filepath.Join(varsDir, e.Name()))
			if err != nil {
				continue
			}
			vars[e.Name()] = strings.TrimSpace(string(data))
		}
	}
	return vars
}

// FromYumConfig reads the enabled repositories of a yum/dnf configuration:
// mainConf plus every file matching reposGlob. Missing files are ignored.
func FromYumConfig(mainConf, reposGlob string, vars map[string]string) ([]models.RepoSpec, error) {
	files, err := filepath.Glob(reposGlob)
	if err != nil {
		return nil, models.NewCheckError(models.ErrInvalidConfig, "", fmt.Errorf("glob %s: %w", reposGlob, err))
	}
	sort.Strings(files)
	others := make([]interface{}, 0, len(files))
	for _, f := range files {
		others = append(others, f)
	}

	cfg, err := ini.LoadSources(ini.LoadOptions{Loose: true, AllowPythonMultilineValues: true}, mainConf, others...)
	if err != nil {
		return nil, models.NewCheckError(models.ErrInvalidConfig, "", fmt.Errorf("reading yum configuration: %w", err))
	}

	var specs []models.RepoSpec
	for _, sec := range cfg.Sections() {
		name := sec.Name()
		if name == ini.DefaultSection || name == "main" {
			continue
		}
		if sec.HasKey("enabled") && !sec.Key("enabled").MustBool(true) {
			continue
		}

		spec := models.RepoSpec{
			Name:              name,
			SkipIfUnavailable: sec.Key("skip_if_unavailable").MustBool(false),
			GPGCheck:          sec.Key("repo_gpgcheck").MustBool(false),
		}
		if keys := strings.Fields(strings.ReplaceAll(sec.Key("gpgkey").String(), ",", " ")); len(keys) > 0 {
			spec.GPGKey = substitute(keys[0], vars)
		}

		switch {
		case sec.HasKey("baseurl"):
			// Several base URLs may be listed; the first one is used.
			urls := strings.Fields(strings.ReplaceAll(sec.Key("baseurl").String(), ",", " "))
			if len(urls) == 0 {
				return nil, models.NewCheckError(models.ErrInvalidConfig, "", fmt.Errorf("yum config section %s has an empty baseurl", name))
			}
			spec.BaseURL = substitute(urls[0], vars)
			if strings.HasPrefix(spec.BaseURL, "file://") {
				spec.BaseURL = strings.TrimPrefix(spec.BaseURL, "file://")
			}
		case sec.HasKey("metalink"):
			spec.Metalink = substitute(sec.Key("metalink").String(), vars)
		case sec.HasKey("mirrorlist"):
			spec.Mirrorlist = substitute(sec.Key("mirrorlist").String(), vars)
		default:
			return nil, models.NewCheckError(models.ErrInvalidConfig, "",
				fmt.Errorf("yum config section %s has no baseurl or metalink or mirrorlist", name))
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// substitute expands $name and ${name} references.
func substitute(s string, vars map[string]string) string {
	names := make([]string, 0, len(vars))
	for n := range vars {
		names = append(names, n)
	}
	// Longest first so $releasever_major is not cut short by $releasever
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	for _, n := range names {
		s = strings.ReplaceAll(s, "${"+n+"}", vars[n])
		s = strings.ReplaceAll(s, "$"+n, vars[n])
	}
	return s
}

// ParseRepoFlag parses the "name,baseurl" form of --repo.
func ParseRepoFlag(value string) (models.RepoSpec, error) {
	name, url, ok := strings.Cut(value, ",")
	name, url = strings.TrimSpace(name), strings.TrimSpace(url)
	if !ok || name == "" || url == "" {
		return models.RepoSpec{}, models.NewCheckError(models.ErrInvalidConfig, "",
			fmt.Errorf("repo %q must be given as NAME,URL", value))
	}
	return models.RepoSpec{Name: name, BaseURL: url}, nil
}
