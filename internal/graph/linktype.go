package graph

import (
	"encoding/json"
	"fmt"
	"strings"
)

// LinkType is the closed, ordered enumeration of link kinds.
//
// The numeric order is significant for conflict precedence (lower wins) and
// for sorting; it carries no meaning for graph validity.
type LinkType int

const (
	LinkCreate LinkType = iota + 1
	LinkReturn
	LinkInput
	LinkCall
)

// AllLinkTypes lists every link type in enumeration order.
var AllLinkTypes = []LinkType{LinkCreate, LinkReturn, LinkInput, LinkCall}

var linkTypeNames = map[LinkType]string{
	LinkCreate: "create",
	LinkReturn: "return",
	LinkInput:  "input",
	LinkCall:   "call",
}

// String returns the wire name of the link type.
func (t LinkType) String() string {
	if name, ok := linkTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("linktype(%d)", int(t))
}

// Valid reports whether t is a member of the enumeration.
func (t LinkType) Valid() bool {
	_, ok := linkTypeNames[t]
	return ok
}

// IsProvenance reports whether edges of this type record execution
// provenance and therefore must stay acyclic.
func (t LinkType) IsProvenance() bool {
	return t == LinkCreate || t == LinkCall
}

// ParseLinkType parses a wire name (case-insensitive).
func ParseLinkType(s string) (LinkType, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for _, t := range AllLinkTypes {
		if linkTypeNames[t] == want {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown link type %q", s)
}

// ParseLinkTypes parses a list of wire names, skipping empty entries.
func ParseLinkTypes(names []string) ([]LinkType, error) {
	var out []LinkType
	for _, name := range names {
		for _, part := range strings.Split(name, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			t, err := ParseLinkType(part)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
	}
	return out, nil
}

// MarshalJSON encodes the link type as its wire name.
func (t LinkType) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("marshal link type: invalid value %d", int(t))
	}
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a wire name.
func (t *LinkType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("link type must be a string: %w", err)
	}
	parsed, err := ParseLinkType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
