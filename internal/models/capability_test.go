package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCapability(t *testing.T) {
	tests := []struct {
		in      string
		name    string
		op      Operator
		version string
		wantErr bool
	}{
		{in: "libfoo.so.1()(64bit)", name: "libfoo.so.1()(64bit)"},
		{in: "foo >= 1.0", name: "foo", op: OpGE, version: "1.0"},
		{in: "foo = 2:1.0-3", name: "foo", op: OpEQ, version: "2:1.0-3"},
		{in: "/usr/bin/sh", name: "/usr/bin/sh"},
		{in: "perl(Foo::Bar) < 3", name: "perl(Foo::Bar)", op: OpLT, version: "3"},
		{in: "", wantErr: true},
		{in: "foo >=", wantErr: true},
		{in: "foo ~= 1", wantErr: true},
		{in: "-foo", wantErr: true},
		{in: "foo >= 1.0-", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, err := ParseCapability(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, c.Name)
			assert.Equal(t, tt.op, c.Op)
			if tt.version != "" {
				assert.Equal(t, MustParseVersion(tt.version), c.Version)
			}
			assert.Equal(t, tt.in, c.String())
		})
	}
}

func TestCapabilityMatches(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"foo", "foo = 1.0-1", true},
		{"foo >= 1.0", "foo", true},
		{"foo >= 2.0", "foo = 1.0-1", false},
		{"foo >= 1.0", "foo = 1.0-1", true},
		{"foo > 1.0", "foo = 1.0-1", false},
		{"foo > 1.0-1", "foo = 1.0-2", true},
		{"foo < 1.0", "foo = 1.0-1", false},
		{"foo <= 1.0", "foo = 1.0-7", true},
		{"foo = 1.0", "foo = 1.0-7", true},
		{"foo = 1.0-6", "foo = 1.0-7", false},
		{"foo < 2", "foo > 1", true},
		{"foo < 1", "foo > 2", false},
		{"foo <= 1", "foo >= 1", true},
		{"foo < 1", "foo >= 1", false},
		{"foo >= 1", "foo >= 5", true},
		{"foo = 1:1.0", "foo = 1.0", false},
		{"foo", "bar", false},
		{"foo >= 1.2", "foo = 1.10-1", true},
	}

	for _, tt := range tests {
		a, b := MustParseCapability(tt.a), MustParseCapability(tt.b)
		assert.Equal(t, tt.want, a.Matches(b), "%s vs %s", tt.a, tt.b)
		assert.Equal(t, tt.want, b.Matches(a), "%s vs %s", tt.b, tt.a)
	}
}

func TestNewCapabilityFromHeader(t *testing.T) {
	c, err := NewCapability("foo", SenseGreater|SenseEqual, "1.0-1")
	require.NoError(t, err)
	assert.Equal(t, "foo >= 1.0-1", c.String())

	c, err = NewCapability("bar", 0, "")
	require.NoError(t, err)
	assert.False(t, c.Versioned())

	c, err = NewCapability("rpmlib(PayloadIsXz)", SenseRPMLib|SenseLess|SenseEqual, "5.2-1")
	require.NoError(t, err)
	assert.Equal(t, OpLE, c.Op)

	_, err = NewCapability("baz", SenseLess|SenseGreater, "1")
	require.Error(t, err)
}

func TestCapabilityFromEntry(t *testing.T) {
	c, err := CapabilityFromEntry("glibc", "GE", "0", "2.34", "1")
	require.NoError(t, err)
	assert.Equal(t, "glibc >= 2.34-1", c.String())

	c, err = CapabilityFromEntry("kernel", "EQ", "1", "6.1", "")
	require.NoError(t, err)
	assert.Equal(t, Version{Epoch: 1, Version: "6.1"}, c.Version)

	c, err = CapabilityFromEntry("config(foo)", "", "", "", "")
	require.NoError(t, err)
	assert.False(t, c.Versioned())

	_, err = CapabilityFromEntry("x", "NE", "0", "1", "")
	require.Error(t, err)
}

func TestParseRichDependency(t *testing.T) {
	c, err := ParseCapability("(foo >= 1.0 or perl(Bar))")
	require.NoError(t, err)
	require.NotNil(t, c.Rich)
	assert.Equal(t, RichOr, c.Rich.Op)
	require.Len(t, c.Rich.Operands, 2)
	assert.Equal(t, "foo >= 1.0", c.Rich.Operands[0].String())
	assert.Equal(t, "perl(Bar)", c.Rich.Operands[1].Name)
	assert.False(t, c.Rich.Conditional())
	assert.False(t, c.IsFile())

	c, err = ParseCapability("(a and b and (c or d))")
	require.NoError(t, err)
	require.Len(t, c.Rich.Operands, 3)
	assert.NotNil(t, c.Rich.Operands[2].Rich)
	assert.Equal(t, "(a and b and (c or d))", c.String())

	c, err = ParseCapability("(foo if bar else baz)")
	require.NoError(t, err)
	assert.Equal(t, RichIf, c.Rich.Op)
	require.NotNil(t, c.Rich.Else)
	assert.True(t, c.Rich.Conditional())

	for _, bad := range []string{"(foo", "(foo or)", "(or foo)", "(a and b or c)", "(a xor b)", "(a or b) c"} {
		_, err := ParseCapability(bad)
		assert.Error(t, err, bad)
	}
}

func TestPackageProvidesCapability(t *testing.T) {
	p := &Package{
		Name:     "bash",
		Arch:     "x86_64",
		Version:  MustParseVersion("5.2-1"),
		Provides: []Capability{MustParseCapability("/bin/sh"), MustParseCapability("config(bash) = 5.2-1")},
		Files:    map[string]FileEntry{"/usr/bin/bash": {Digest: "abc"}},
	}

	assert.True(t, p.ProvidesCapability(MustParseCapability("bash >= 5")))
	assert.False(t, p.ProvidesCapability(MustParseCapability("bash >= 6")))
	assert.True(t, p.ProvidesCapability(MustParseCapability("/bin/sh")))
	assert.True(t, p.ProvidesCapability(MustParseCapability("/usr/bin/bash")))
	assert.False(t, p.ProvidesCapability(MustParseCapability("/usr/bin/zsh")))
	assert.True(t, p.ProvidesCapability(MustParseCapability("config(bash)")))
	assert.False(t, p.ProvidesCapability(MustParseCapability("(bash or zsh)")))

	prov, ok := p.MatchingProvide("config(bash)")
	require.True(t, ok)
	assert.Equal(t, "config(bash) = 5.2-1", prov.String())
}

func TestObsoletesAndConflicts(t *testing.T) {
	old := &Package{Name: "a", Arch: "i386", Version: MustParseVersion("0.1-1")}
	b := &Package{
		Name: "b", Arch: "i386", Version: MustParseVersion("0.1-2"),
		Obsoletes: []Capability{MustParseCapability("a < 0.2")},
		Conflicts: []Capability{MustParseCapability("a = 0.1-1")},
	}
	assert.True(t, b.ObsoletesPackage(old))
	assert.True(t, b.ConflictsWithPackage(old))
	assert.False(t, old.ObsoletesPackage(b))

	newer := &Package{Name: "a", Arch: "i386", Version: MustParseVersion("0.2-1")}
	assert.False(t, b.ObsoletesPackage(newer))
	assert.False(t, b.ConflictsWithPackage(newer))
}

func TestProblemKey(t *testing.T) {
	a := Identity{Name: "a", Arch: "x86_64", Version: MustParseVersion("1-1")}
	b := Identity{Name: "b", Arch: "x86_64", Version: MustParseVersion("1-1")}
	c := Identity{Name: "c", Arch: "x86_64", Version: MustParseVersion("1-1")}

	p1 := NewProblem(ProblemUnsatisfiedDependency, a, "x")
	p1.Subject, p1.Capability = &c, "libz.so.1"
	p2 := NewProblem(ProblemUnsatisfiedDependency, b, "y")
	p2.Subject, p2.Capability = &c, "libz.so.1"
	assert.NotEqual(t, p1.Key(), p2.Key())

	p3 := NewProblem(ProblemUnsatisfiedDependency, a, "z")
	p3.Subject, p3.Capability = &b, "libz.so.1"
	assert.Equal(t, p1.Key(), p3.Key())

	p1.Merge(p3)
	p1.Merge(p3)
	assert.Equal(t, []Identity{c, b}, p1.Dependents)

	f1 := NewProblem(ProblemFileConflict, a, "x")
	f1.Path, f1.Related = "/etc/x", []Identity{b}
	f2 := NewProblem(ProblemFileConflict, a, "x")
	f2.Path, f2.Related = "/etc/x", []Identity{c}
	assert.NotEqual(t, f1.Key(), f2.Key())

	assert.Equal(t, SeverityWarning, NewProblem(ProblemDowngradeOrEqual, a, "").Severity)
	assert.Equal(t, SeverityError, f1.Severity)
}

func TestFileEntryComparable(t *testing.T) {
	md5 := FileEntry{Digest: "d41d8cd98f00b204e9800998ecf8427e"}
	sha256 := FileEntry{Digest: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"}

	assert.Equal(t, "md5", md5.DigestAlgorithm())
	assert.Equal(t, "sha256", sha256.DigestAlgorithm())
	assert.Equal(t, "", FileEntry{}.DigestAlgorithm())

	assert.True(t, sha256.Comparable(sha256))
	assert.False(t, sha256.Comparable(md5))
	assert.True(t, FileEntry{Kind: FileSymlink, LinkTarget: "x"}.Comparable(md5))
}
