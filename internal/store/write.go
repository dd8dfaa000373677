package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/prova/internal/graph"
)

// CreateNode inserts a node record into the store.
// Uses ON CONFLICT(uuid) DO NOTHING: an existing node always wins and its
// attributes are never overwritten. Reports whether a row was inserted.
//
// Attributes and extras are serialized to canonical JSON per RFC 8785.
//
// Note: a referenced computer or user must already exist (foreign key constraint).
func (o ops) CreateNode(ctx context.Context, n graph.Node) (bool, error) {
	attrsJSON, err := marshalValues("attributes", n.Attributes)
	if err != nil {
		return false, fmt.Errorf("create node %s: %w", n.UUID, err)
	}
	extrasJSON, err := marshalValues("extras", n.Extras)
	if err != nil {
		return false, fmt.Errorf("create node %s: %w", n.UUID, err)
	}

	result, err := o.q.ExecContext(ctx, `
		INSERT INTO nodes
		(uuid, node_type, label, attributes, extras, computer_uuid, user_email)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO NOTHING
	`,
		n.UUID,
		n.Type,
		n.Label,
		attrsJSON,
		extrasJSON,
		nullString(n.ComputerUUID),
		nullString(n.UserEmail),
	)
	if err != nil {
		return false, fmt.Errorf("create node %s: %w", n.UUID, err)
	}
	return inserted(result, "create node")
}

// CreateLink inserts a link record into the store.
// Uses ON CONFLICT(output_uuid, label) DO NOTHING. Callers that need to tell
// an identical existing link from a conflicting one use FindLink first.
//
// Note: both endpoints must exist (foreign key constraints).
func (o ops) CreateLink(ctx context.Context, l graph.Link) (bool, error) {
	if !l.Type.Valid() {
		return false, fmt.Errorf("create link %s/%s: invalid link type %d", l.Output, l.Label, int(l.Type))
	}
	result, err := o.q.ExecContext(ctx, `
		INSERT INTO links
		(input_uuid, output_uuid, label, link_type)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(output_uuid, label) DO NOTHING
	`,
		l.Input,
		l.Output,
		l.Label,
		l.Type.String(),
	)
	if err != nil {
		return false, fmt.Errorf("create link %s/%s: %w", l.Output, l.Label, err)
	}
	return inserted(result, "create link")
}

// CreateComputer inserts a computer record.
// Unlike the other Create methods this is not idempotent: a duplicate UUID
// or name is an error, since name allocation is the caller's job.
func (o ops) CreateComputer(ctx context.Context, c graph.Computer) error {
	configJSON, err := marshalValues("config", c.Config)
	if err != nil {
		return fmt.Errorf("create computer %s: %w", c.UUID, err)
	}

	_, err = o.q.ExecContext(ctx, `
		INSERT INTO computers
		(uuid, name, hostname, transport, scheduler, config)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		c.UUID,
		c.Name,
		c.Hostname,
		c.Transport,
		c.Scheduler,
		configJSON,
	)
	if err != nil {
		return fmt.Errorf("create computer %s: %w", c.UUID, err)
	}
	return nil
}

// CreateUser inserts a user record if the email is not already present.
// Existing profile fields are never overwritten.
func (o ops) CreateUser(ctx context.Context, u graph.User) (bool, error) {
	result, err := o.q.ExecContext(ctx, `
		INSERT INTO users
		(email, first_name, last_name, institution)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(email) DO NOTHING
	`,
		u.Email,
		u.FirstName,
		u.LastName,
		u.Institution,
	)
	if err != nil {
		return false, fmt.Errorf("create user %s: %w", u.Email, err)
	}
	return inserted(result, "create user")
}

// CreateGroup inserts a group record (without members) if the UUID is not
// already present. Use AddGroupMembers for membership.
func (o ops) CreateGroup(ctx context.Context, g graph.Group) (bool, error) {
	result, err := o.q.ExecContext(ctx, `
		INSERT INTO node_groups
		(uuid, name, group_type, description)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(uuid) DO NOTHING
	`,
		g.UUID,
		g.Name,
		g.Type,
		g.Description,
	)
	if err != nil {
		return false, fmt.Errorf("create group %s: %w", g.UUID, err)
	}
	return inserted(result, "create group")
}

// AddGroupMembers unions members into a group's membership.
// Returns the number of memberships that were not already present.
func (o ops) AddGroupMembers(ctx context.Context, groupUUID string, members []string) (int, error) {
	added := 0
	for _, m := range members {
		result, err := o.q.ExecContext(ctx, `
			INSERT INTO group_members (group_uuid, node_uuid)
			VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, groupUUID, m)
		if err != nil {
			return added, fmt.Errorf("add member %s to group %s: %w", m, groupUUID, err)
		}
		ok, err := inserted(result, "add group member")
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

// inserted reports whether an ON CONFLICT DO NOTHING insert wrote a row.
func inserted(result sql.Result, op string) (bool, error) {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return rowsAffected > 0, nil
}
