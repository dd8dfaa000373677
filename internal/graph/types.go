package graph

// Node is a data or calculation vertex in the provenance graph.
//
// Attributes are frozen once the node is stored; Extras stay mutable.
// Both hold JSON-like values: nil, bool, string, numbers, []any and
// map[string]any. Values read back from a store or archive carry numbers as
// json.Number so nothing is lost to float64 rounding.
type Node struct {
	UUID         string         `json:"uuid"`
	Type         string         `json:"type"`
	Label        string         `json:"label"`
	Attributes   map[string]any `json:"attributes"`
	Extras       map[string]any `json:"extras"`
	ComputerUUID string         `json:"computer,omitempty"`
	UserEmail    string         `json:"user,omitempty"`
}

// License returns the node's declared data license from the
// "source.license" attribute.
//
// present is false when the node declares no license, which is treated as
// "no restriction". ok is false when a license is declared but is not a
// string.
func (n Node) License() (license string, present bool, ok bool) {
	src, found := n.Attributes["source"]
	if !found || src == nil {
		return "", false, true
	}
	m, isMap := src.(map[string]any)
	if !isMap {
		return "", false, true
	}
	raw, found := m["license"]
	if !found || raw == nil {
		return "", false, true
	}
	s, isString := raw.(string)
	if !isString {
		return "", true, false
	}
	return s, true, true
}

// Link is a directed, typed, labelled edge from Input to Output.
type Link struct {
	Input  string   `json:"input"`
	Output string   `json:"output"`
	Label  string   `json:"label"`
	Type   LinkType `json:"type"`
}

// Computer is a compute resource keyed by a human-assigned unique name.
// UUID is the stable identity used to reconcile it across stores; Config is
// opaque to the export/import engine.
type Computer struct {
	UUID      string         `json:"uuid"`
	Name      string         `json:"name"`
	Hostname  string         `json:"hostname"`
	Transport string         `json:"transport"`
	Scheduler string         `json:"scheduler"`
	Config    map[string]any `json:"config"`
}

// User is identified by an immutable email address.
type User struct {
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Institution string `json:"institution"`
}

// Group is a named, typed collection of node UUIDs.
type Group struct {
	UUID        string   `json:"uuid"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Members     []string `json:"members"`
}
