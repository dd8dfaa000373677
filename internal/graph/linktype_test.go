package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkTypeOrdering(t *testing.T) {
	assert.Less(t, LinkCreate, LinkReturn)
	assert.Less(t, LinkReturn, LinkInput)
	assert.Less(t, LinkInput, LinkCall)
}

func TestLinkTypeIsProvenance(t *testing.T) {
	assert.True(t, LinkCreate.IsProvenance())
	assert.True(t, LinkCall.IsProvenance())
	assert.False(t, LinkInput.IsProvenance())
	assert.False(t, LinkReturn.IsProvenance())
}

func TestParseLinkType(t *testing.T) {
	for _, lt := range AllLinkTypes {
		parsed, err := ParseLinkType(lt.String())
		require.NoError(t, err)
		assert.Equal(t, lt, parsed)
	}

	parsed, err := ParseLinkType(" INPUT ")
	require.NoError(t, err)
	assert.Equal(t, LinkInput, parsed)

	_, err = ParseLinkType("parent")
	assert.Error(t, err)
}

func TestParseLinkTypesCommaSeparated(t *testing.T) {
	types, err := ParseLinkTypes([]string{"create,input", "", "call"})
	require.NoError(t, err)
	assert.Equal(t, []LinkType{LinkCreate, LinkInput, LinkCall}, types)

	_, err = ParseLinkTypes([]string{"create,bogus"})
	assert.Error(t, err)
}

func TestLinkTypeJSON(t *testing.T) {
	data, err := json.Marshal(Link{Input: "a", Output: "b", Label: "x", Type: LinkCall})
	require.NoError(t, err)
	assert.JSONEq(t, `{"input":"a","output":"b","label":"x","type":"call"}`, string(data))

	var l Link
	require.NoError(t, json.Unmarshal(data, &l))
	assert.Equal(t, LinkCall, l.Type)

	assert.Error(t, json.Unmarshal([]byte(`{"type":"sideways"}`), &l))
	assert.Error(t, json.Unmarshal([]byte(`{"type":3}`), &l))

	_, err = json.Marshal(LinkType(0))
	assert.Error(t, err)
	assert.Equal(t, "linktype(9)", LinkType(9).String())
}
