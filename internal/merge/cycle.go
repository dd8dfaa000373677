package merge

import (
	"context"
	"fmt"

	"github.com/roach88/prova/internal/graph"
)

// provenancePath returns a path from -> ... -> to along CREATE and CALL
// edges already in the target, or nil when to is unreachable. Adding a
// provenance link to -> from closes a cycle exactly when such a path
// exists.
func provenancePath(ctx context.Context, t Target, from, to string) ([]string, error) {
	if from == to {
		return []string{from}, nil
	}

	parent := map[string]string{from: ""}
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		out, err := t.OutgoingLinks(ctx, cur)
		if err != nil {
			return nil, fmt.Errorf("outgoing links of %s: %w", cur, err)
		}
		for _, l := range out {
			if !l.Type.IsProvenance() {
				continue
			}
			if _, seen := parent[l.Output]; seen {
				continue
			}
			parent[l.Output] = cur
			if l.Output == to {
				return tracePath(parent, from, to), nil
			}
			stack = append(stack, l.Output)
		}
	}
	return nil, nil
}

func tracePath(parent map[string]string, from, to string) []string {
	var rev []string
	for cur := to; cur != from; cur = parent[cur] {
		rev = append(rev, cur)
	}
	rev = append(rev, from)

	path := make([]string, len(rev))
	for i, uuid := range rev {
		path[len(rev)-1-i] = uuid
	}
	return path
}

// closesCycle reports whether creating l would close a provenance cycle.
func closesCycle(ctx context.Context, t Target, l graph.Link) ([]string, error) {
	if !l.Type.IsProvenance() {
		return nil, nil
	}
	return provenancePath(ctx, t, l.Output, l.Input)
}
