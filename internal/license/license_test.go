package license

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/prova/internal/errs"
	"github.com/roach88/prova/internal/graph"
)

func licensed(uuid string, license any) graph.Node {
	attrs := map[string]any{}
	if license != nil {
		attrs["source"] = map[string]any{"license": license}
	}
	return graph.Node{UUID: uuid, Type: "data.structure", Attributes: attrs}
}

func closureOf(nodes ...graph.Node) *graph.Closure {
	return &graph.Closure{Nodes: nodes}
}

func TestApply(t *testing.T) {
	gpl := closureOf(licensed("n1", nil), licensed("n2", "GPL"))

	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{"no policy", None(), false},
		{"allow list without match", Allow("CC0"), true},
		{"allow list with match", Allow("GPL"), false},
		{"allow list among several", Allow("CC0", "GPL", "MIT"), false},
		{"deny list with match", Deny("GPL"), true},
		{"deny list without match", Deny("CC0"), false},
		{"allow predicate true", AllowFunc(func(l string) (bool, error) { return l == "GPL", nil }), false},
		{"allow predicate false", AllowFunc(func(string) (bool, error) { return false, nil }), true},
		{"deny predicate true", DenyFunc(func(l string) (bool, error) { return true, nil }), true},
		{"deny predicate false", DenyFunc(func(l string) (bool, error) { return false, nil }), false},
		{"allow glob", AllowFunc(GlobPredicate("CC*", "G?L")), false},
		{"deny glob", DenyFunc(GlobPredicate("*PL")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Apply(gpl, tt.policy)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errs.Is(err, errs.LicensingError))
				assert.Nil(t, out)
				return
			}
			require.NoError(t, err)
			assert.Same(t, gpl, out)
		})
	}
}

func TestApply_ErrorNamesNode(t *testing.T) {
	_, err := Apply(closureOf(licensed("n1", "CC0"), licensed("n2", "GPL")), Allow("CC0"))
	require.Error(t, err)

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "n2", e.UUID)
	assert.Equal(t, "source.license", e.Field)
	assert.Contains(t, e.Message, "GPL")
}

func TestApply_AbsentLicensePasses(t *testing.T) {
	c := closureOf(licensed("n1", nil), graph.Node{UUID: "n2"})

	for _, p := range []Policy{Allow("CC0"), Deny("CC0"), AllowFunc(func(string) (bool, error) { return false, nil })} {
		_, err := Apply(c, p)
		assert.NoError(t, err, p.String())
	}
}

func TestApply_PredicateFailureIsLicensingError(t *testing.T) {
	c := closureOf(licensed("n1", "GPL"))

	failing := AllowFunc(func(string) (bool, error) { return false, errors.New("evaluator broken") })
	_, err := Apply(c, failing)
	require.Error(t, err)
	assert.Equal(t, errs.LicensingError, errs.CodeOf(err))
	assert.Contains(t, err.Error(), "evaluator broken")

	panicking := DenyFunc(func(string) (bool, error) { panic("boom") })
	_, err = Apply(c, panicking)
	require.Error(t, err)
	assert.Equal(t, errs.LicensingError, errs.CodeOf(err))
	assert.Contains(t, err.Error(), "predicate panicked: boom")

	_, err = Apply(c, AllowFunc(GlobPredicate("[")))
	require.Error(t, err)
	assert.Equal(t, errs.LicensingError, errs.CodeOf(err))
}

func TestApply_NonStringLicense(t *testing.T) {
	_, err := Apply(closureOf(licensed("n1", 42)), Deny("GPL"))
	require.Error(t, err)
	assert.Equal(t, errs.LicensingError, errs.CodeOf(err))

	// no policy never inspects attributes
	_, err = Apply(closureOf(licensed("n1", 42)), None())
	assert.NoError(t, err)
}

func TestPolicyString(t *testing.T) {
	assert.Equal(t, "none", None().String())
	assert.Equal(t, "allow [CC0 GPL]", Allow("GPL", " CC0 ", "GPL", "").String())
	assert.Equal(t, "deny predicate", DenyFunc(GlobPredicate("*")).String())
	assert.Equal(t, ModeDeny, Deny("x").Mode())
}
