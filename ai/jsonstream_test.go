package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgBuilder_FinalStrictParse(t *testing.T) {
	b := NewArgBuilder()
	b.Append(`{"path":`)
	b.Append(`"main.go","limit":5}`)

	args, err := b.Final()
	require.NoError(t, err)
	assert.Equal(t, "main.go", args["path"])
	assert.Equal(t, float64(5), args["limit"])
	assert.Equal(t, `{"path":"main.go","limit":5}`, b.Raw())
}

func TestArgBuilder_FinalEmptyDefaultsToEmptyObject(t *testing.T) {
	b := NewArgBuilder()
	args, err := b.Final()
	require.NoError(t, err)
	assert.Empty(t, args)
}

func TestArgBuilder_FinalRejectsMalformedJSON(t *testing.T) {
	b := NewArgBuilder()
	b.Append(`{"path": "unterminated`)

	_, err := b.Final()
	assert.Error(t, err)
}

func TestArgBuilder_SnapshotToleratesTruncation(t *testing.T) {
	b := NewArgBuilder()
	b.Append(`{"query":"how many re`)

	snap := b.Snapshot()
	assert.Equal(t, "how many re", snap["query"])
}

func TestArgBuilder_SnapshotClosesOpenNesting(t *testing.T) {
	b := NewArgBuilder()
	b.Append(`{"filters":{"a":1,"b":[1,2,3`)

	snap := b.Snapshot()
	filters, ok := snap["filters"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), filters["a"])
}

func TestArgBuilder_SnapshotOnNothingParseable(t *testing.T) {
	b := NewArgBuilder()
	b.Append(`not json at all`)

	snap := b.Snapshot()
	assert.Empty(t, snap)
}

func TestArgBuilder_SeedSetsWholeRawString(t *testing.T) {
	b := NewArgBuilder()
	b.Seed(`{"a":1}`)
	assert.Equal(t, `{"a":1}`, b.Raw())
}
