package merge

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/prova/internal/archive"
	"github.com/roach88/prova/internal/blob"
	"github.com/roach88/prova/internal/errs"
	"github.com/roach88/prova/internal/graph"
	"github.com/roach88/prova/internal/store"
	"github.com/roach88/prova/internal/testutil"
)

func parsedSample(t *testing.T, sample *testutil.Sample) *archive.ParsedGraph {
	t.Helper()
	content := testutil.MemBlobs()
	testutil.SeedBlobs(t, content, sample.Files)
	return &archive.ParsedGraph{
		Closure: testutil.Normalize(t, sample.Closure),
		Content: content,
	}
}

func counts(t *testing.T, s *store.Store) graph.Counts {
	t.Helper()
	c, err := s.Counts(context.Background())
	require.NoError(t, err)
	return c
}

func TestMergeIntoEmptyStore(t *testing.T) {
	ctx := context.Background()
	sample := testutil.NewSample()
	s := testutil.OpenStore(t)
	blobs := testutil.MemBlobs()
	m := &Merger{Blobs: blobs}

	report, err := m.Merge(ctx, parsedSample(t, sample), StoreTransactor(s))
	require.NoError(t, err)

	assert.Equal(t, Tally{Created: 6}, report.Nodes)
	assert.Equal(t, Tally{Created: 8}, report.Links)
	assert.Equal(t, Tally{Created: 1}, report.Computers)
	assert.Equal(t, Tally{Created: 1}, report.Users)
	assert.Equal(t, Tally{Created: 1}, report.Groups)
	assert.Equal(t, 2, report.GroupMembersAdded)
	assert.Equal(t, 3, report.FilesWritten)
	assert.Empty(t, report.RenamedComputers)

	want := testutil.Normalize(t, sample.Closure)
	for _, n := range want.Nodes {
		got, err := s.GetNode(ctx, n.UUID)
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
	for key, data := range sample.Files {
		got, err := blob.ReadAll(ctx, blobs, key, 0)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
}

func TestMergeTwiceReusesEverything(t *testing.T) {
	ctx := context.Background()
	sample := testutil.NewSample()
	s := testutil.OpenStore(t)
	m := &Merger{Blobs: testutil.MemBlobs()}

	_, err := m.Merge(ctx, parsedSample(t, sample), StoreTransactor(s))
	require.NoError(t, err)
	before := counts(t, s)

	report, err := m.Merge(ctx, parsedSample(t, sample), StoreTransactor(s))
	require.NoError(t, err)

	assert.Equal(t, Tally{Reused: 6}, report.Nodes)
	assert.Equal(t, Tally{Reused: 8}, report.Links)
	assert.Equal(t, Tally{Reused: 1}, report.Computers)
	assert.Equal(t, Tally{Reused: 1}, report.Users)
	assert.Equal(t, Tally{Reused: 1}, report.Groups)
	assert.Zero(t, report.GroupMembersAdded)
	assert.Zero(t, report.FilesWritten)
	assert.Equal(t, before, counts(t, s))
}

func TestMergeExistingNodeWins(t *testing.T) {
	ctx := context.Background()
	sample := testutil.NewSample()
	s := testutil.OpenStore(t)
	testutil.Seed(t, s, sample.Closure)

	pg := parsedSample(t, sample)
	for i := range pg.Closure.Nodes {
		pg.Closure.Nodes[i].Label = "renamed in archive"
		pg.Closure.Nodes[i].Extras = map[string]any{"tampered": true}
	}

	report, err := (&Merger{}).Merge(ctx, pg, StoreTransactor(s))
	require.NoError(t, err)
	assert.Equal(t, 6, report.Nodes.Reused)

	got, err := s.GetNode(ctx, sample.Params)
	require.NoError(t, err)
	assert.Equal(t, "pw parameters", got.Label)
	assert.Empty(t, got.Extras)
}

func TestMergeUnionsGroupMembers(t *testing.T) {
	ctx := context.Background()
	sample := testutil.NewSample()
	s := testutil.OpenStore(t)
	testutil.Seed(t, s, sample.Closure)

	pg := parsedSample(t, sample)
	pg.Closure.Groups[0].Members = []string{sample.Structure}

	report, err := (&Merger{}).Merge(ctx, pg, StoreTransactor(s))
	require.NoError(t, err)
	assert.Equal(t, Tally{Reused: 1}, report.Groups)
	assert.Equal(t, 1, report.GroupMembersAdded)

	g, err := s.GetGroup(ctx, sample.Group)
	require.NoError(t, err)
	assert.Equal(t, []string{sample.Structure, sample.Output, sample.Retrieved}, g.Members)
}

func computerOnly(uuid, name string) *archive.ParsedGraph {
	return &archive.ParsedGraph{Closure: &graph.Closure{
		Computers: []graph.Computer{{UUID: uuid, Name: name, Hostname: name, Transport: "ssh", Scheduler: "slurm"}},
	}}
}

func TestMergeDisambiguatesComputerNames(t *testing.T) {
	ctx := context.Background()
	s := testutil.OpenStore(t)
	m := &Merger{}

	for i, want := range []string{"cluster", "cluster (Imported #0)", "cluster (Imported #1)"} {
		uuid := testutil.UUID(300 + i)
		report, err := m.Merge(ctx, computerOnly(uuid, "cluster"), StoreTransactor(s))
		require.NoError(t, err)
		assert.Equal(t, Tally{Created: 1}, report.Computers)

		got, err := s.GetComputer(ctx, uuid)
		require.NoError(t, err)
		assert.Equal(t, want, got.Name)
		if i > 0 {
			require.Len(t, report.RenamedComputers, 1)
			assert.Equal(t, RenamedComputer{UUID: uuid, Original: "cluster", Assigned: want, Suffix: i - 1}, report.RenamedComputers[0])
		}
	}

	// Re-importing a known computer keeps its assigned name.
	report, err := m.Merge(ctx, computerOnly(testutil.UUID(302), "cluster"), StoreTransactor(s))
	require.NoError(t, err)
	assert.Equal(t, Tally{Reused: 1}, report.Computers)
	assert.Empty(t, report.RenamedComputers)
	got, err := s.GetComputer(ctx, testutil.UUID(302))
	require.NoError(t, err)
	assert.Equal(t, "cluster (Imported #1)", got.Name)
}

func TestMergePicksLowestUnusedSuffix(t *testing.T) {
	ctx := context.Background()
	s := testutil.OpenStore(t)
	m := &Merger{}

	for i, name := range []string{"cluster", "cluster (Imported #1)", "cluster (Imported #x)"} {
		_, err := m.Merge(ctx, computerOnly(testutil.UUID(400+i), name), StoreTransactor(s))
		require.NoError(t, err)
	}

	report, err := m.Merge(ctx, computerOnly(testutil.UUID(410), "cluster"), StoreTransactor(s))
	require.NoError(t, err)
	require.Len(t, report.RenamedComputers, 1)
	assert.Equal(t, "cluster (Imported #0)", report.RenamedComputers[0].Assigned)

	report, err = m.Merge(ctx, computerOnly(testutil.UUID(411), "cluster"), StoreTransactor(s))
	require.NoError(t, err)
	require.Len(t, report.RenamedComputers, 1)
	assert.Equal(t, "cluster (Imported #2)", report.RenamedComputers[0].Assigned)
}

func TestMergeRejectsProvenanceCycle(t *testing.T) {
	ctx := context.Background()
	sample := testutil.NewSample()
	s := testutil.OpenStore(t)
	testutil.Seed(t, s, sample.Closure)
	before := counts(t, s)

	fresh := testutil.UUID(50)
	pg := parsedSample(t, sample)
	pg.Closure.Nodes = append(pg.Closure.Nodes, graph.Node{
		UUID: fresh, Type: "data.dict", Label: "new", Attributes: map[string]any{}, Extras: map[string]any{},
	})
	// workflow calls calc already; calc calling workflow closes the loop.
	pg.Closure.Links = append(pg.Closure.Links,
		graph.Link{Input: sample.Calc, Output: fresh, Label: "extra", Type: graph.LinkCreate},
		graph.Link{Input: sample.Calc, Output: sample.Workflow, Label: "call_back", Type: graph.LinkCall},
	)
	pg.Closure.Sort()

	_, err := (&Merger{}).Merge(ctx, pg, StoreTransactor(s))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.GraphIntegrityError), err.Error())

	assert.Equal(t, before, counts(t, s))
	exists, err := s.NodeExists(ctx, fresh)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMergeAllowsNonProvenanceLoop(t *testing.T) {
	ctx := context.Background()
	sample := testutil.NewSample()
	s := testutil.OpenStore(t)
	testutil.Seed(t, s, sample.Closure)

	pg := parsedSample(t, sample)
	pg.Closure.Links = append(pg.Closure.Links,
		graph.Link{Input: sample.Output, Output: sample.Workflow, Label: "restart", Type: graph.LinkInput})

	report, err := (&Merger{}).Merge(ctx, pg, StoreTransactor(s))
	require.NoError(t, err)
	assert.Equal(t, Tally{Created: 1, Reused: 8}, report.Links)
}

func TestMergeRejectsLabelConflict(t *testing.T) {
	ctx := context.Background()
	sample := testutil.NewSample()
	s := testutil.OpenStore(t)
	testutil.Seed(t, s, sample.Closure)
	before := counts(t, s)

	pg := parsedSample(t, sample)
	for i, l := range pg.Closure.Links {
		if l.Output == sample.Workflow && l.Label == "structure" {
			pg.Closure.Links[i].Input = sample.Params
		}
	}

	_, err := (&Merger{}).Merge(ctx, pg, StoreTransactor(s))
	require.Error(t, err)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.GraphIntegrityError, e.Code)
	assert.Equal(t, sample.Workflow, e.UUID)
	assert.Equal(t, "structure", e.Field)
	assert.Equal(t, before, counts(t, s))
}

func TestMergeExternalLinks(t *testing.T) {
	ctx := context.Background()
	sample := testutil.NewSample()
	s := testutil.OpenStore(t)
	testutil.Seed(t, s, sample.Closure)

	fresh := testutil.UUID(60)
	pg := &archive.ParsedGraph{Closure: &graph.Closure{
		Nodes: []graph.Node{{UUID: fresh, Type: "data.dict", Label: "post-processed", Attributes: map[string]any{}, Extras: map[string]any{}}},
		ExternalLinks: []graph.Link{
			{Input: sample.Output, Output: fresh, Label: "source", Type: graph.LinkInput},
			{Input: testutil.UUID(61), Output: fresh, Label: "missing", Type: graph.LinkInput},
		},
	}}

	report, err := (&Merger{}).Merge(ctx, pg, StoreTransactor(s))
	require.NoError(t, err)
	assert.Equal(t, Tally{Created: 1}, report.ExternalLinks)
	assert.Equal(t, 1, report.ExternalLinksSkipped)

	in, err := s.IncomingLinks(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, []graph.Link{{Input: sample.Output, Output: fresh, Label: "source", Type: graph.LinkInput}}, in)
}

func TestMergeReportsDroppedLinks(t *testing.T) {
	pg := parsedSample(t, testutil.NewSample())
	pg.DroppedLinks = []graph.Link{{Input: testutil.UUID(70), Output: testutil.UUID(71), Label: "x", Type: graph.LinkInput}}

	report, err := (&Merger{}).Merge(context.Background(), pg, StoreTransactor(testutil.OpenStore(t)))
	require.NoError(t, err)
	assert.Equal(t, 1, report.DroppedLinks)
}

// flakyBlobs fails every Put after the first n.
type flakyBlobs struct {
	blob.Store
	n int
}

func (f *flakyBlobs) Put(ctx context.Context, key string, r io.Reader) error {
	if f.n == 0 {
		return errors.New("disk full")
	}
	f.n--
	return f.Store.Put(ctx, key, r)
}

func TestMergeRemovesContentOnFailure(t *testing.T) {
	ctx := context.Background()
	s := testutil.OpenStore(t)
	target := &flakyBlobs{Store: testutil.MemBlobs(), n: 1}

	_, err := (&Merger{Blobs: target}).Merge(ctx, parsedSample(t, testutil.NewSample()), StoreTransactor(s))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.IOError), err.Error())

	keys, err := target.Keys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Equal(t, graph.Counts{}, counts(t, s))
}

func TestSuffixIndex(t *testing.T) {
	prefix := "x" + importedMarker
	tests := []struct {
		name   string
		want   int
		wantOK bool
	}{
		{"x (Imported #0)", 0, true},
		{"x (Imported #12)", 12, true},
		{"x (Imported #)", 0, false},
		{"x (Imported #1) copy", 0, false},
		{"x (Imported #-1)", 0, false},
		{"y (Imported #1)", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := suffixIndex(tt.name, prefix)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "x (Imported #3)", DisambiguatedName("x", 3))
}
