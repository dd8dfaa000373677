package walker

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/prova/internal/errs"
	"github.com/roach88/prova/internal/graph"
	"github.com/roach88/prova/internal/store"
)

// Kind distinguishes seed entity kinds.
type Kind string

const (
	KindNode  Kind = "node"
	KindGroup Kind = "group"
)

// EntityRef names a seed entity.
type EntityRef struct {
	Kind Kind
	UUID string
}

// NodeRef returns a reference to a node.
func NodeRef(uuid string) EntityRef { return EntityRef{Kind: KindNode, UUID: uuid} }

// GroupRef returns a reference to a group.
func GroupRef(uuid string) EntityRef { return EntityRef{Kind: KindGroup, UUID: uuid} }

// Source is the read side of the live store used by the walk.
// *store.Store and *store.Tx satisfy it.
type Source interface {
	GetNode(ctx context.Context, uuid string) (graph.Node, error)
	IncomingLinks(ctx context.Context, uuid string) ([]graph.Link, error)
	OutgoingLinks(ctx context.Context, uuid string) ([]graph.Link, error)
	GetComputer(ctx context.Context, uuid string) (graph.Computer, error)
	GetUser(ctx context.Context, email string) (graph.User, error)
	GetGroup(ctx context.Context, uuid string) (graph.Group, error)
	GroupsContaining(ctx context.Context, nodeUUID string) ([]string, error)
}

// visit is a queued node and its distance from the nearest seed.
type visit struct {
	uuid  string
	depth int
}

// adjacency caches both link directions of an included node.
type adjacency struct {
	in, out []graph.Link
}

type walk struct {
	src    Source
	policy Policy

	nodes  map[string]graph.Node
	order  []string
	links  map[string]adjacency
	groups map[string]graph.Group
	queue  []visit
}

// ComputeClosure returns the closure of seeds under policy.
//
// Fails with InvalidArgument for an empty seed set, a malformed UUID, an
// unknown seed kind, an excluded seed or an invalid policy, and with
// NotFound when a seed does not exist.
func ComputeClosure(ctx context.Context, src Source, seeds []EntityRef, policy Policy) (*graph.Closure, error) {
	if len(seeds) == 0 {
		return nil, errs.New(errs.InvalidArgument, "empty seed set")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	w := &walk{
		src:    src,
		policy: policy,
		nodes:  map[string]graph.Node{},
		links:  map[string]adjacency{},
		groups: map[string]graph.Group{},
	}

	if err := w.seed(ctx, seeds); err != nil {
		return nil, err
	}
	if err := w.traverse(ctx); err != nil {
		return nil, err
	}
	return w.assemble(ctx)
}

// seed resolves every seed reference and queues the starting nodes.
func (w *walk) seed(ctx context.Context, seeds []EntityRef) error {
	for _, ref := range seeds {
		uuid, err := graph.NormalizeUUID(ref.UUID)
		if err != nil {
			return errs.Wrap(errs.InvalidArgument, err, "malformed %s uuid", ref.Kind).WithUUID(ref.UUID)
		}

		switch ref.Kind {
		case KindNode:
			if w.policy.Exclude[uuid] {
				return errs.New(errs.InvalidArgument, "seed node is excluded").WithUUID(uuid)
			}
			if err := w.include(ctx, uuid, 0); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return errs.New(errs.NotFound, "seed node not found").WithUUID(uuid)
				}
				return err
			}

		case KindGroup:
			g, err := w.src.GetGroup(ctx, uuid)
			if errors.Is(err, store.ErrNotFound) {
				return errs.New(errs.NotFound, "seed group not found").WithUUID(uuid)
			}
			if err != nil {
				return fmt.Errorf("seed group %s: %w", uuid, err)
			}
			w.groups[uuid] = g
			for _, member := range g.Members {
				if w.policy.Exclude[member] {
					continue
				}
				if err := w.include(ctx, member, 0); err != nil {
					return fmt.Errorf("group %s member %s: %w", uuid, member, err)
				}
			}

		default:
			return errs.New(errs.InvalidArgument, "unknown seed kind %q", ref.Kind).WithUUID(ref.UUID)
		}
	}
	return nil
}

// include fetches a node and its links and queues it, once.
func (w *walk) include(ctx context.Context, uuid string, depth int) error {
	if _, seen := w.nodes[uuid]; seen {
		return nil
	}
	n, err := w.src.GetNode(ctx, uuid)
	if err != nil {
		return err
	}
	in, err := w.src.IncomingLinks(ctx, uuid)
	if err != nil {
		return err
	}
	out, err := w.src.OutgoingLinks(ctx, uuid)
	if err != nil {
		return err
	}

	w.nodes[uuid] = n
	w.order = append(w.order, uuid)
	w.links[uuid] = adjacency{in: in, out: out}
	w.queue = append(w.queue, visit{uuid: uuid, depth: depth})
	return nil
}

// traverse runs the breadth-first expansion.
func (w *walk) traverse(ctx context.Context) error {
	for len(w.queue) > 0 {
		v := w.queue[0]
		w.queue = w.queue[1:]

		if !w.policy.expands(v.depth) {
			continue
		}
		adj := w.links[v.uuid]

		for _, l := range adj.in {
			if !w.policy.followsUp(l.Type) || w.policy.Exclude[l.Input] {
				continue
			}
			if err := w.include(ctx, l.Input, v.depth+1); err != nil {
				return fmt.Errorf("follow %s link %s <- %s: %w", l.Type, v.uuid, l.Input, err)
			}
		}
		for _, l := range adj.out {
			if !w.policy.followsDown(l.Type) || w.policy.Exclude[l.Output] {
				continue
			}
			if err := w.include(ctx, l.Output, v.depth+1); err != nil {
				return fmt.Errorf("follow %s link %s -> %s: %w", l.Type, v.uuid, l.Output, err)
			}
		}
	}
	return nil
}

// assemble gathers links, computers, users and groups for the included
// nodes and returns the sorted closure.
func (w *walk) assemble(ctx context.Context) (*graph.Closure, error) {
	c := &graph.Closure{
		Nodes:         []graph.Node{},
		Links:         []graph.Link{},
		ExternalLinks: []graph.Link{},
		Computers:     []graph.Computer{},
		Users:         []graph.User{},
		Groups:        []graph.Group{},
	}
	computers := map[string]bool{}
	users := map[string]bool{}

	for _, uuid := range w.order {
		n := w.nodes[uuid]
		c.Nodes = append(c.Nodes, n)

		// Internal links are collected once, from their output side.
		adj := w.links[uuid]
		for _, l := range adj.in {
			if _, inside := w.nodes[l.Input]; inside {
				c.Links = append(c.Links, l)
			} else {
				c.ExternalLinks = append(c.ExternalLinks, l)
			}
		}
		for _, l := range adj.out {
			if _, inside := w.nodes[l.Output]; !inside {
				c.ExternalLinks = append(c.ExternalLinks, l)
			}
		}

		if n.ComputerUUID != "" && !computers[n.ComputerUUID] {
			comp, err := w.src.GetComputer(ctx, n.ComputerUUID)
			if err != nil {
				return nil, fmt.Errorf("computer of node %s: %w", uuid, err)
			}
			computers[n.ComputerUUID] = true
			c.Computers = append(c.Computers, comp)
		}
		if n.UserEmail != "" && !users[n.UserEmail] {
			u, err := w.src.GetUser(ctx, n.UserEmail)
			if err != nil {
				return nil, fmt.Errorf("user of node %s: %w", uuid, err)
			}
			users[n.UserEmail] = true
			c.Users = append(c.Users, u)
		}

		if w.policy.IncludeGroups {
			if err := w.addContainingGroups(ctx, uuid); err != nil {
				return nil, err
			}
		}
	}

	for _, g := range w.groups {
		members := []string{}
		for _, m := range g.Members {
			if _, inside := w.nodes[m]; inside {
				members = append(members, m)
			}
		}
		g.Members = members
		c.Groups = append(c.Groups, g)
	}

	c.Sort()
	return c, nil
}

func (w *walk) addContainingGroups(ctx context.Context, nodeUUID string) error {
	groupUUIDs, err := w.src.GroupsContaining(ctx, nodeUUID)
	if err != nil {
		return fmt.Errorf("groups of node %s: %w", nodeUUID, err)
	}
	for _, gu := range groupUUIDs {
		if _, seen := w.groups[gu]; seen {
			continue
		}
		g, err := w.src.GetGroup(ctx, gu)
		if err != nil {
			return fmt.Errorf("group %s: %w", gu, err)
		}
		w.groups[gu] = g
	}
	return nil
}
