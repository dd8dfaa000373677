// Package testutil provides deterministic fixtures for export/import tests:
// test clocks, stable UUIDs and a small sample provenance graph that can be
// seeded into a store.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"github.com/roach88/prova/internal/blob"
	"github.com/roach88/prova/internal/graph"
	"github.com/roach88/prova/internal/store"
)

// UUID returns a stable, valid UUID for fixture entity n.
func UUID(n int) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", n)
}

// Sample is a small relaxation workflow.
//
//	structure ─input─▶ workflow ─call─▶ calc ─create─▶ output
//	params    ─input─▶ workflow          calc ─create─▶ retrieved
//	structure ─input─▶ calc     workflow ─return─▶ output
//	params    ─input─▶ calc
//
// The calc runs on Computer; every node is owned by User. Group holds
// output and retrieved. The structure declares a GPL license.
type Sample struct {
	Closure *graph.Closure
	Files   map[string][]byte

	Structure string
	Params    string
	Workflow  string
	Calc      string
	Output    string
	Retrieved string
	Computer  string
	Group     string
	User      string
}

// NewSample builds the sample graph with its content files.
func NewSample() *Sample {
	s := &Sample{
		Structure: UUID(1),
		Params:    UUID(2),
		Workflow:  UUID(3),
		Calc:      UUID(4),
		Output:    UUID(5),
		Retrieved: UUID(6),
		Computer:  UUID(100),
		Group:     UUID(200),
		User:      "alice@example.org",
	}

	node := func(uuid, typ, label string, attrs map[string]any) graph.Node {
		if attrs == nil {
			attrs = map[string]any{}
		}
		return graph.Node{
			UUID:       uuid,
			Type:       typ,
			Label:      label,
			Attributes: attrs,
			Extras:     map[string]any{},
			UserEmail:  s.User,
		}
	}

	calc := node(s.Calc, "process.calculation.calcjob", "pw relax", map[string]any{
		"process_state": "finished",
		"exit_status":   0,
	})
	calc.ComputerUUID = s.Computer

	s.Closure = &graph.Closure{
		Nodes: []graph.Node{
			node(s.Structure, "data.structure", "Fe bcc", map[string]any{
				"cell": []any{
					[]any{2.87, 0.0, 0.0},
					[]any{0.0, 2.87, 0.0},
					[]any{0.0, 0.0, 2.87},
				},
				"kinds":  []any{map[string]any{"name": "Fe", "mass": 55.845, "symbols": []any{"Fe"}}},
				"source": map[string]any{"db_name": "icsd", "license": "GPL"},
			}),
			node(s.Params, "data.dict", "pw parameters", map[string]any{
				"ecutwfc":  30,
				"smearing": "cold",
			}),
			node(s.Workflow, "process.workflow.workchain", "relax", nil),
			calc,
			node(s.Output, "data.dict", "output parameters", map[string]any{
				"energy":       -3357.4479,
				"energy_units": "eV",
			}),
			node(s.Retrieved, "data.folder", "retrieved", nil),
		},
		Links: []graph.Link{
			{Input: s.Structure, Output: s.Workflow, Label: "structure", Type: graph.LinkInput},
			{Input: s.Params, Output: s.Workflow, Label: "parameters", Type: graph.LinkInput},
			{Input: s.Workflow, Output: s.Calc, Label: "call_1", Type: graph.LinkCall},
			{Input: s.Structure, Output: s.Calc, Label: "structure", Type: graph.LinkInput},
			{Input: s.Params, Output: s.Calc, Label: "parameters", Type: graph.LinkInput},
			{Input: s.Calc, Output: s.Output, Label: "output_parameters", Type: graph.LinkCreate},
			{Input: s.Calc, Output: s.Retrieved, Label: "retrieved", Type: graph.LinkCreate},
			{Input: s.Workflow, Output: s.Output, Label: "result", Type: graph.LinkReturn},
		},
		ExternalLinks: []graph.Link{},
		Computers: []graph.Computer{{
			UUID:      s.Computer,
			Name:      "localhost",
			Hostname:  "localhost",
			Transport: "local",
			Scheduler: "direct",
			Config:    map[string]any{"use_login_shell": true},
		}},
		Users: []graph.User{{
			Email:       s.User,
			FirstName:   "Alice",
			LastName:    "Liddell",
			Institution: "Wonderland Institute",
		}},
		Groups: []graph.Group{{
			UUID:        s.Group,
			Name:        "relax results",
			Type:        "core",
			Description: "outputs of the Fe relaxation",
			Members:     []string{s.Output, s.Retrieved},
		}},
	}
	s.Closure.Sort()

	s.Files = map[string][]byte{
		blob.NodeKey(s.Structure, "structure.cif"): []byte("data_Fe\n_cell_length_a 2.87\n"),
		blob.NodeKey(s.Retrieved, "pw.out"):     []byte("JOB DONE.\n"),
		blob.NodeKey(s.Retrieved, "out/data.xml"):  []byte("<energy>-3357.4479</energy>\n"),
	}
	return s
}

// OpenStore opens an empty store under t.TempDir.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "prova.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// MemBlobs returns an empty in-memory blob store.
func MemBlobs() blob.Store {
	return blob.NewLocal(afero.NewBasePathFs(afero.NewMemMapFs(), "/blobs"))
}

// Seed writes every entity of c into s in one transaction, in dependency
// order.
func Seed(t testing.TB, s *store.Store, c *graph.Closure) {
	t.Helper()
	ctx := context.Background()
	err := s.InTx(ctx, func(tx *store.Tx) error {
		for _, u := range c.Users {
			if _, err := tx.CreateUser(ctx, u); err != nil {
				return err
			}
		}
		for _, comp := range c.Computers {
			if err := tx.CreateComputer(ctx, comp); err != nil {
				return err
			}
		}
		for _, n := range c.Nodes {
			if _, err := tx.CreateNode(ctx, n); err != nil {
				return err
			}
		}
		for _, g := range c.Groups {
			if _, err := tx.CreateGroup(ctx, g); err != nil {
				return err
			}
			if _, err := tx.AddGroupMembers(ctx, g.UUID, g.Members); err != nil {
				return err
			}
		}
		for _, l := range c.Links {
			if _, err := tx.CreateLink(ctx, l); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
}

// SeedBlobs writes files into bs.
func SeedBlobs(t testing.TB, bs blob.Store, files map[string][]byte) {
	t.Helper()
	for key, data := range files {
		if err := bs.Put(context.Background(), key, bytes.NewReader(data)); err != nil {
			t.Fatalf("seed blob %s: %v", key, err)
		}
	}
}
