package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/prova/internal/graph"
)

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// GetNode retrieves a single node by UUID.
// Returns ErrNotFound if no node has that UUID.
func (o ops) GetNode(ctx context.Context, uuid string) (graph.Node, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT uuid, node_type, label, attributes, extras, computer_uuid, user_email
		FROM nodes
		WHERE uuid = ?
	`, uuid)

	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return graph.Node{}, ErrNotFound
	}
	if err != nil {
		return graph.Node{}, fmt.Errorf("get node %s: %w", uuid, err)
	}
	return n, nil
}

// NodeExists reports whether a node with the given UUID is stored.
func (o ops) NodeExists(ctx context.Context, uuid string) (bool, error) {
	var count int
	err := o.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes WHERE uuid = ?`, uuid).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check node %s: %w", uuid, err)
	}
	return count > 0, nil
}

// ListNodeUUIDs returns every stored node UUID in binary order.
func (o ops) ListNodeUUIDs(ctx context.Context) ([]string, error) {
	rows, err := o.q.QueryContext(ctx, `SELECT uuid FROM nodes ORDER BY uuid COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query node uuids: %w", err)
	}
	return collectStrings(rows, "node uuids")
}

func scanNode(row scanner) (graph.Node, error) {
	var (
		n                  graph.Node
		attrsJSON, extJSON string
		computer, user     sql.NullString
	)
	if err := row.Scan(&n.UUID, &n.Type, &n.Label, &attrsJSON, &extJSON, &computer, &user); err != nil {
		return graph.Node{}, err
	}

	var err error
	if n.Attributes, err = unmarshalValues("attributes", attrsJSON); err != nil {
		return graph.Node{}, err
	}
	if n.Extras, err = unmarshalValues("extras", extJSON); err != nil {
		return graph.Node{}, err
	}
	n.ComputerUUID = computer.String
	n.UserEmail = user.String
	return n, nil
}

// IncomingLinks returns the links whose output is the given node.
// Results are ordered by label, then input UUID.
func (o ops) IncomingLinks(ctx context.Context, uuid string) ([]graph.Link, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT input_uuid, output_uuid, label, link_type
		FROM links
		WHERE output_uuid = ?
		ORDER BY label COLLATE BINARY ASC, input_uuid COLLATE BINARY ASC
	`, uuid)
	if err != nil {
		return nil, fmt.Errorf("query incoming links: %w", err)
	}
	return collectLinks(rows)
}

// OutgoingLinks returns the links whose input is the given node.
// Results are ordered by output UUID, then label.
func (o ops) OutgoingLinks(ctx context.Context, uuid string) ([]graph.Link, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT input_uuid, output_uuid, label, link_type
		FROM links
		WHERE input_uuid = ?
		ORDER BY output_uuid COLLATE BINARY ASC, label COLLATE BINARY ASC
	`, uuid)
	if err != nil {
		return nil, fmt.Errorf("query outgoing links: %w", err)
	}
	return collectLinks(rows)
}

// FindLink returns the link with the given output node and label.
// The second result is false when no such link exists.
func (o ops) FindLink(ctx context.Context, output, label string) (graph.Link, bool, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT input_uuid, output_uuid, label, link_type
		FROM links
		WHERE output_uuid = ? AND label = ?
	`, output, label)

	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return graph.Link{}, false, nil
	}
	if err != nil {
		return graph.Link{}, false, fmt.Errorf("find link %s/%s: %w", output, label, err)
	}
	return l, true, nil
}

func scanLink(row scanner) (graph.Link, error) {
	var (
		l        graph.Link
		typeName string
	)
	if err := row.Scan(&l.Input, &l.Output, &l.Label, &typeName); err != nil {
		return graph.Link{}, err
	}
	t, err := graph.ParseLinkType(typeName)
	if err != nil {
		return graph.Link{}, fmt.Errorf("scan link: %w", err)
	}
	l.Type = t
	return l, nil
}

func collectLinks(rows *sql.Rows) ([]graph.Link, error) {
	defer rows.Close()

	links := []graph.Link{}
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return links, nil
}

// GetComputer retrieves a computer by UUID.
// Returns ErrNotFound if no computer has that UUID.
func (o ops) GetComputer(ctx context.Context, uuid string) (graph.Computer, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT uuid, name, hostname, transport, scheduler, config
		FROM computers
		WHERE uuid = ?
	`, uuid)
	return getComputer(row, uuid)
}

// GetComputerByName retrieves a computer by its unique name.
// Returns ErrNotFound if no computer has that name.
func (o ops) GetComputerByName(ctx context.Context, name string) (graph.Computer, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT uuid, name, hostname, transport, scheduler, config
		FROM computers
		WHERE name = ?
	`, name)
	return getComputer(row, name)
}

func getComputer(row scanner, key string) (graph.Computer, error) {
	var (
		c          graph.Computer
		configJSON string
	)
	err := row.Scan(&c.UUID, &c.Name, &c.Hostname, &c.Transport, &c.Scheduler, &configJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return graph.Computer{}, ErrNotFound
	}
	if err != nil {
		return graph.Computer{}, fmt.Errorf("get computer %s: %w", key, err)
	}
	if c.Config, err = unmarshalValues("config", configJSON); err != nil {
		return graph.Computer{}, err
	}
	return c, nil
}

// ComputerNamesWithPrefix returns every computer name that starts with
// prefix, in binary order.
func (o ops) ComputerNamesWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT name FROM computers
		WHERE substr(name, 1, length(?)) = ?
		ORDER BY name COLLATE BINARY ASC
	`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("query computer names: %w", err)
	}
	return collectStrings(rows, "computer names")
}

// GetUser retrieves a user by email.
// Returns ErrNotFound if no user has that email.
func (o ops) GetUser(ctx context.Context, email string) (graph.User, error) {
	var u graph.User
	err := o.q.QueryRowContext(ctx, `
		SELECT email, first_name, last_name, institution
		FROM users
		WHERE email = ?
	`, email).Scan(&u.Email, &u.FirstName, &u.LastName, &u.Institution)
	if errors.Is(err, sql.ErrNoRows) {
		return graph.User{}, ErrNotFound
	}
	if err != nil {
		return graph.User{}, fmt.Errorf("get user %s: %w", email, err)
	}
	return u, nil
}

// GetGroup retrieves a group and its sorted member list by UUID.
// Returns ErrNotFound if no group has that UUID.
func (o ops) GetGroup(ctx context.Context, uuid string) (graph.Group, error) {
	var g graph.Group
	err := o.q.QueryRowContext(ctx, `
		SELECT uuid, name, group_type, description
		FROM node_groups
		WHERE uuid = ?
	`, uuid).Scan(&g.UUID, &g.Name, &g.Type, &g.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return graph.Group{}, ErrNotFound
	}
	if err != nil {
		return graph.Group{}, fmt.Errorf("get group %s: %w", uuid, err)
	}

	rows, err := o.q.QueryContext(ctx, `
		SELECT node_uuid FROM group_members
		WHERE group_uuid = ?
		ORDER BY node_uuid COLLATE BINARY ASC
	`, uuid)
	if err != nil {
		return graph.Group{}, fmt.Errorf("query group members: %w", err)
	}
	if g.Members, err = collectStrings(rows, "group members"); err != nil {
		return graph.Group{}, err
	}
	return g, nil
}

// GroupsContaining returns the UUIDs of every group the node belongs to.
func (o ops) GroupsContaining(ctx context.Context, nodeUUID string) ([]string, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT group_uuid FROM group_members
		WHERE node_uuid = ?
		ORDER BY group_uuid COLLATE BINARY ASC
	`, nodeUUID)
	if err != nil {
		return nil, fmt.Errorf("query groups for node: %w", err)
	}
	return collectStrings(rows, "groups for node")
}

// Counts returns row counts per entity kind. ExternalLinks is always zero.
func (o ops) Counts(ctx context.Context) (graph.Counts, error) {
	var c graph.Counts
	err := o.q.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM nodes),
			(SELECT COUNT(*) FROM links),
			(SELECT COUNT(*) FROM computers),
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM node_groups)
	`).Scan(&c.Nodes, &c.Links, &c.Computers, &c.Users, &c.Groups)
	if err != nil {
		return graph.Counts{}, fmt.Errorf("count entities: %w", err)
	}
	return c, nil
}

func collectStrings(rows *sql.Rows, what string) ([]string, error) {
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}
	return out, nil
}
