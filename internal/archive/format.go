package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/prova/internal/graph"
)

// FormatVersion is the archive format version this package writes.
const FormatVersion = 1

// SupportedVersions lists the format versions the reader understands.
var SupportedVersions = []int{1}

// Entry names inside the container.
const (
	MetadataEntry = "metadata.json"
	DataEntry     = "data.json"
	ContentDir    = "nodes/"
)

// Metadata is the archive header.
type Metadata struct {
	ExportVersion int          `json:"export_version" yaml:"export_version"`
	ExportedAt    time.Time    `json:"exported_at" yaml:"exported_at"`
	Source        string       `json:"source" yaml:"source"`
	Generator     string       `json:"generator" yaml:"generator"`
	Counts        graph.Counts `json:"counts" yaml:"counts"`
}

func supported(version int) bool {
	for _, v := range SupportedVersions {
		if v == version {
			return true
		}
	}
	return false
}

// metadataValues converts metadata to canonical-JSON input.
func metadataValues(m Metadata) map[string]any {
	return map[string]any{
		"export_version": m.ExportVersion,
		"exported_at":    m.ExportedAt.UTC().Format(time.RFC3339),
		"source":         m.Source,
		"generator":      m.Generator,
		"counts": map[string]any{
			"nodes":          m.Counts.Nodes,
			"links":          m.Counts.Links,
			"external_links": m.Counts.ExternalLinks,
			"computers":      m.Counts.Computers,
			"users":          m.Counts.Users,
			"groups":         m.Counts.Groups,
		},
	}
}

// graphDoc is the decoded form of data.json.
type graphDoc struct {
	Nodes         []graph.Node     `json:"nodes"`
	Links         []graph.Link     `json:"links"`
	ExternalLinks []graph.Link     `json:"external_links"`
	Computers     []graph.Computer `json:"computers"`
	Users         []graph.User     `json:"users"`
	Groups        []graph.Group    `json:"groups"`
}

// encodeGraph renders the sorted closure as canonical JSON. Unencodable
// values are reported against the entity that holds them.
func encodeGraph(c *graph.Closure) ([]byte, *encodeError) {
	nodes := make([]any, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		v := nodeValues(n)
		if _, err := graph.MarshalCanonical(v); err != nil {
			return nil, &encodeError{uuid: n.UUID, err: err}
		}
		nodes = append(nodes, v)
	}
	computers := make([]any, 0, len(c.Computers))
	for _, comp := range c.Computers {
		v := computerValues(comp)
		if _, err := graph.MarshalCanonical(v); err != nil {
			return nil, &encodeError{uuid: comp.UUID, err: err}
		}
		computers = append(computers, v)
	}

	doc := map[string]any{
		"nodes":          nodes,
		"links":          linkValues(c.Links),
		"external_links": linkValues(c.ExternalLinks),
		"computers":      computers,
		"users":          userValues(c.Users),
		"groups":         groupValues(c.Groups),
	}
	data, err := graph.MarshalCanonical(doc)
	if err != nil {
		return nil, &encodeError{err: err}
	}
	return data, nil
}

type encodeError struct {
	uuid string
	err  error
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nodeValues(n graph.Node) map[string]any {
	v := map[string]any{
		"uuid":       n.UUID,
		"type":       n.Type,
		"label":      n.Label,
		"attributes": nonNil(n.Attributes),
		"extras":     nonNil(n.Extras),
	}
	if n.ComputerUUID != "" {
		v["computer"] = n.ComputerUUID
	}
	if n.UserEmail != "" {
		v["user"] = n.UserEmail
	}
	return v
}

func linkValues(links []graph.Link) []any {
	out := make([]any, 0, len(links))
	for _, l := range links {
		out = append(out, map[string]any{
			"input":  l.Input,
			"output": l.Output,
			"label":  l.Label,
			"type":   l.Type.String(),
		})
	}
	return out
}

func computerValues(c graph.Computer) map[string]any {
	return map[string]any{
		"uuid":      c.UUID,
		"name":      c.Name,
		"hostname":  c.Hostname,
		"transport": c.Transport,
		"scheduler": c.Scheduler,
		"config":    nonNil(c.Config),
	}
}

func userValues(users []graph.User) []any {
	out := make([]any, 0, len(users))
	for _, u := range users {
		out = append(out, map[string]any{
			"email":       u.Email,
			"first_name":  u.FirstName,
			"last_name":   u.LastName,
			"institution": u.Institution,
		})
	}
	return out
}

func groupValues(groups []graph.Group) []any {
	out := make([]any, 0, len(groups))
	for _, g := range groups {
		members := make([]any, 0, len(g.Members))
		for _, m := range g.Members {
			members = append(members, m)
		}
		out = append(out, map[string]any{
			"uuid":        g.UUID,
			"name":        g.Name,
			"type":        g.Type,
			"description": g.Description,
			"members":     members,
		})
	}
	return out
}

// decodeGraph decodes schema-validated data.json, keeping numbers exact.
func decodeGraph(data []byte) (*graph.Closure, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()

	var doc graphDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", DataEntry, err)
	}
	c := &graph.Closure{
		Nodes:         orEmpty(doc.Nodes),
		Links:         orEmpty(doc.Links),
		ExternalLinks: orEmpty(doc.ExternalLinks),
		Computers:     orEmpty(doc.Computers),
		Users:         orEmpty(doc.Users),
		Groups:        orEmpty(doc.Groups),
	}
	for i := range c.Nodes {
		c.Nodes[i].Attributes = nonNil(c.Nodes[i].Attributes)
		c.Nodes[i].Extras = nonNil(c.Nodes[i].Extras)
	}
	for i := range c.Computers {
		c.Computers[i].Config = nonNil(c.Computers[i].Config)
	}
	for i := range c.Groups {
		c.Groups[i].Members = orEmpty(c.Groups[i].Members)
	}
	return c, nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
