// Package license enforces data-license policies on export closures.
//
// A Policy is one of four variants: no policy, an allow list, a deny list,
// or a predicate in allow or deny mode. Enforcement is all-or-nothing: a
// single violating node aborts the whole export. Nodes that declare no
// license always pass.
package license

import (
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/roach88/prova/internal/errs"
	"github.com/roach88/prova/internal/graph"
)

// Mode says whether a policy's matcher selects permitted or rejected
// licenses.
type Mode int

const (
	ModeNone Mode = iota
	ModeAllow
	ModeDeny
)

func (m Mode) String() string {
	switch m {
	case ModeAllow:
		return "allow"
	case ModeDeny:
		return "deny"
	default:
		return "none"
	}
}

// Predicate decides whether a license matches. An error means the
// predicate could not decide.
type Predicate func(license string) (bool, error)

// Policy is a license policy. The zero value is the no-op policy.
type Policy struct {
	mode  Mode
	set   []string
	match Predicate
}

// None returns the pass-through policy.
func None() Policy { return Policy{} }

// Allow permits only the listed licenses.
func Allow(licenses ...string) Policy {
	return Policy{mode: ModeAllow, set: normalizeSet(licenses)}
}

// Deny rejects the listed licenses.
func Deny(licenses ...string) Policy {
	return Policy{mode: ModeDeny, set: normalizeSet(licenses)}
}

// AllowFunc permits licenses for which fn returns true.
func AllowFunc(fn Predicate) Policy {
	return Policy{mode: ModeAllow, match: fn}
}

// DenyFunc rejects licenses for which fn returns true.
func DenyFunc(fn Predicate) Policy {
	return Policy{mode: ModeDeny, match: fn}
}

// GlobPredicate matches licenses against shell patterns (path.Match
// syntax). A malformed pattern makes the predicate fail when evaluated.
func GlobPredicate(patterns ...string) Predicate {
	return func(license string) (bool, error) {
		for _, p := range patterns {
			ok, err := path.Match(p, license)
			if err != nil {
				return false, fmt.Errorf("license pattern %q: %w", p, err)
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
}

func normalizeSet(licenses []string) []string {
	out := make([]string, 0, len(licenses))
	for _, l := range licenses {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Mode returns the policy mode.
func (p Policy) Mode() Mode { return p.mode }

// String describes the policy for logs.
func (p Policy) String() string {
	switch {
	case p.mode == ModeNone:
		return "none"
	case p.match != nil:
		return p.mode.String() + " predicate"
	default:
		return fmt.Sprintf("%s %v", p.mode, p.set)
	}
}

// Apply checks every node of c against the policy and returns c unchanged
// when all pass.
//
// Fails with LicensingError naming the first violating node in closure
// order. A predicate that errors or panics is reported the same way, as is
// a license attribute that is not a string.
func Apply(c *graph.Closure, p Policy) (*graph.Closure, error) {
	if p.mode == ModeNone {
		return c, nil
	}
	for _, n := range c.Nodes {
		if err := p.check(n); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (p Policy) check(n graph.Node) error {
	license, present, ok := n.License()
	if !ok {
		return errs.New(errs.LicensingError, "license attribute is not a string").
			WithUUID(n.UUID).WithField("source.license")
	}
	if !present {
		return nil
	}

	matched, err := p.matches(license)
	if err != nil {
		return errs.Wrap(errs.LicensingError, err, "license policy failed on %q", license).
			WithUUID(n.UUID).WithField("source.license")
	}

	switch {
	case p.mode == ModeAllow && !matched:
		return errs.New(errs.LicensingError, "license %q is not in the allowed licenses", license).
			WithUUID(n.UUID).WithField("source.license")
	case p.mode == ModeDeny && matched:
		return errs.New(errs.LicensingError, "license %q is forbidden", license).
			WithUUID(n.UUID).WithField("source.license")
	}
	return nil
}

// matches evaluates the set or predicate, turning a predicate panic into
// an error.
func (p Policy) matches(license string) (matched bool, err error) {
	if p.match == nil {
		_, found := slices.BinarySearch(p.set, license)
		return found, nil
	}
	defer func() {
		if r := recover(); r != nil {
			matched, err = false, fmt.Errorf("predicate panicked: %v", r)
		}
	}()
	return p.match(license)
}
