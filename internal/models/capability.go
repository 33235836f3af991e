package models

import (
	"fmt"
	"strings"
)

// Operator is the version comparison of a capability.
type Operator int

const (
	OpNone Operator = iota
	OpLT
	OpLE
	OpEQ
	OpGE
	OpGT
)

// RPM dependency sense bits, as stored in the *FLAGS header tags.
const (
	SenseLess    = 1 << 1
	SenseGreater = 1 << 2
	SenseEqual   = 1 << 3
	senseMask    = SenseLess | SenseGreater | SenseEqual

	// SenseRPMLib marks rpmlib() dependencies that only rpm itself provides.
	SenseRPMLib = 1 << 24
)

// String returns the operator symbol.
func (o Operator) String() string {
	switch o {
	case OpLT:
		return "<"
	case OpLE:
		return "<="
	case OpEQ:
		return "="
	case OpGE:
		return ">="
	case OpGT:
		return ">"
	default:
		return ""
	}
}

// Sense returns the RPM sense bits for the operator.
func (o Operator) Sense() int {
	switch o {
	case OpLT:
		return SenseLess
	case OpLE:
		return SenseLess | SenseEqual
	case OpEQ:
		return SenseEqual
	case OpGE:
		return SenseGreater | SenseEqual
	case OpGT:
		return SenseGreater
	default:
		return 0
	}
}

// OperatorFromSense converts header flag bits into an Operator.
func OperatorFromSense(flags int) (Operator, error) {
	switch flags & senseMask {
	case 0:
		return OpNone, nil
	case SenseLess:
		return OpLT, nil
	case SenseLess | SenseEqual:
		return OpLE, nil
	case SenseEqual:
		return OpEQ, nil
	case SenseGreater | SenseEqual:
		return OpGE, nil
	case SenseGreater:
		return OpGT, nil
	default:
		return OpNone, fmt.Errorf("invalid dependency flags %#x", flags)
	}
}

// symbolOperator parses the operators used in dependency text ("<=").
func symbolOperator(s string) (Operator, bool) {
	switch s {
	case "<":
		return OpLT, true
	case "<=":
		return OpLE, true
	case "=", "==":
		return OpEQ, true
	case ">=":
		return OpGE, true
	case ">":
		return OpGT, true
	}
	return OpNone, false
}

// flagOperator parses the flag names used by primary.xml ("LE").
func flagOperator(s string) (Operator, bool) {
	switch s {
	case "LT":
		return OpLT, true
	case "LE":
		return OpLE, true
	case "EQ":
		return OpEQ, true
	case "GE":
		return OpGE, true
	case "GT":
		return OpGT, true
	}
	return OpNone, false
}

// Flags returns the repodata spelling of the operator ("GE").
func (o Operator) Flags() string {
	switch o {
	case OpLT:
		return "LT"
	case OpLE:
		return "LE"
	case OpEQ:
		return "EQ"
	case OpGE:
		return "GE"
	case OpGT:
		return "GT"
	default:
		return ""
	}
}

// Capability is one entry of a package's provides, requires, conflicts or
// obsoletes. Build it with ParseCapability, NewCapability or
// CapabilityFromEntry; all matching works on the structured form.
type Capability struct {
	Name    string
	Op      Operator
	Version Version

	// Rich is set for boolean dependencies such as "(a or b)". Name then
	// holds the canonical text of the whole expression.
	Rich *RichDep
}

// Versioned reports whether the capability carries a version range.
func (c Capability) Versioned() bool { return c.Op != OpNone }

// IsFile reports whether the capability names a file path.
func (c Capability) IsFile() bool { return c.Rich == nil && strings.HasPrefix(c.Name, "/") }

// String renders the capability the way rpm prints it.
func (c Capability) String() string {
	if c.Rich != nil {
		return c.Rich.String()
	}
	if !c.Versioned() {
		return c.Name
	}
	return c.Name + " " + c.Op.String() + " " + c.Version.String()
}

// Matches reports whether two simple capabilities with the same name have
// overlapping version ranges. An unversioned side matches everything.
func (c Capability) Matches(o Capability) bool {
	if c.Rich != nil || o.Rich != nil || c.Name != o.Name {
		return false
	}
	if !c.Versioned() || !o.Versioned() {
		return true
	}

	sense := c.Version.compareForRange(o.Version)
	a, b := c.Op.Sense(), o.Op.Sense()
	switch {
	case sense < 0:
		return a&SenseGreater != 0 || b&SenseLess != 0
	case sense > 0:
		return a&SenseLess != 0 || b&SenseGreater != 0
	default:
		return (a&SenseEqual != 0 && b&SenseEqual != 0) ||
			(a&SenseLess != 0 && b&SenseLess != 0) ||
			(a&SenseGreater != 0 && b&SenseGreater != 0)
	}
}

// ParseCapability parses "name", "name OP evr" or a parenthesised rich
// dependency.
func ParseCapability(text string) (Capability, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Capability{}, fmt.Errorf("empty capability")
	}
	if strings.HasPrefix(text, "(") {
		return parseRich(text)
	}

	fields := strings.Fields(text)
	switch len(fields) {
	case 1:
		return simpleCapability(fields[0], OpNone, "")
	case 3:
		op, ok := symbolOperator(fields[1])
		if !ok {
			return Capability{}, fmt.Errorf("invalid capability %q: unknown operator %q", text, fields[1])
		}
		return simpleCapability(fields[0], op, fields[2])
	default:
		return Capability{}, fmt.Errorf("invalid capability %q", text)
	}
}

// MustParseCapability is like ParseCapability but panics on error.
func MustParseCapability(text string) Capability {
	c, err := ParseCapability(text)
	if err != nil {
		panic(err)
	}
	return c
}

// NewCapability builds a capability from rpm header data: name, sense
// flags and an evr string.
func NewCapability(name string, flags int, evr string) (Capability, error) {
	if strings.HasPrefix(name, "(") {
		return parseRich(name)
	}
	op, err := OperatorFromSense(flags)
	if err != nil {
		return Capability{}, fmt.Errorf("capability %q: %w", name, err)
	}
	if evr == "" {
		op = OpNone
	}
	return simpleCapability(name, op, evr)
}

// CapabilityFromEntry builds a capability from a primary.xml rpm:entry.
func CapabilityFromEntry(name, flags, epoch, ver, rel string) (Capability, error) {
	if strings.HasPrefix(name, "(") {
		return parseRich(name)
	}
	if flags == "" || ver == "" {
		return simpleCapability(name, OpNone, "")
	}
	op, ok := flagOperator(flags)
	if !ok {
		return Capability{}, fmt.Errorf("capability %q: unknown flags %q", name, flags)
	}

	evr := ver
	if epoch != "" && epoch != "0" {
		evr = epoch + ":" + evr
	}
	if rel != "" {
		evr += "-" + rel
	}
	return simpleCapability(name, op, evr)
}

func simpleCapability(name string, op Operator, evr string) (Capability, error) {
	if err := validateName(name); err != nil {
		return Capability{}, err
	}
	c := Capability{Name: name, Op: op}
	if op != OpNone {
		v, err := ParseVersion(evr)
		if err != nil {
			return Capability{}, fmt.Errorf("capability %q: %w", name, err)
		}
		c.Version = v
	}
	return c, nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("empty capability name")
	}
	c := name[0]
	if !(isDigit(c) || isAlpha(c) || c == '_' || c == '/') {
		return fmt.Errorf("invalid capability name %q", name)
	}
	if strings.ContainsAny(name, " \t\n") {
		return fmt.Errorf("invalid capability name %q: contains whitespace", name)
	}
	return nil
}
