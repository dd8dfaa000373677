package walker

import (
	"slices"

	"github.com/roach88/prova/internal/errs"
	"github.com/roach88/prova/internal/graph"
)

// Policy controls which links the walk follows.
type Policy struct {
	// Ancestors lists link types followed backwards, from a node to the
	// inputs of its incoming links.
	Ancestors []graph.LinkType

	// Descendants lists link types followed forwards, from a node to the
	// outputs of its outgoing links.
	Descendants []graph.LinkType

	// MaxDepth bounds the number of hops from a seed. Zero means unlimited.
	MaxDepth int

	// IncludeGroups adds every group containing an included node. Groups
	// given as seeds are always included.
	IncludeGroups bool

	// Exclude lists node UUIDs that are never included. Links to them
	// become external links.
	Exclude map[string]bool
}

// DefaultPolicy follows every incoming link type with unlimited depth, so
// each included node brings its complete provenance.
func DefaultPolicy() Policy {
	return Policy{Ancestors: slices.Clone(graph.AllLinkTypes)}
}

// DirectInputsPolicy includes the seeds and the nodes that created them or
// were used as their inputs, one hop away.
func DirectInputsPolicy() Policy {
	return Policy{
		Ancestors: []graph.LinkType{graph.LinkCreate, graph.LinkInput},
		MaxDepth:  1,
	}
}

// Validate checks the policy for unusable values.
func (p Policy) Validate() error {
	if p.MaxDepth < 0 {
		return errs.New(errs.InvalidArgument, "max depth must not be negative, got %d", p.MaxDepth).WithField("max_depth")
	}
	for _, t := range p.Ancestors {
		if !t.Valid() {
			return errs.New(errs.InvalidArgument, "invalid ancestor link type %d", int(t)).WithField("ancestors")
		}
	}
	for _, t := range p.Descendants {
		if !t.Valid() {
			return errs.New(errs.InvalidArgument, "invalid descendant link type %d", int(t)).WithField("descendants")
		}
	}
	return nil
}

func (p Policy) followsUp(t graph.LinkType) bool {
	return slices.Contains(p.Ancestors, t)
}

func (p Policy) followsDown(t graph.LinkType) bool {
	return slices.Contains(p.Descendants, t)
}

func (p Policy) expands(depth int) bool {
	return p.MaxDepth == 0 || depth < p.MaxDepth
}
