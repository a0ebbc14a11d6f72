package value

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derivdiff/internal/difference"
)

func mustDecode(t *testing.T, s string) Value {
	t.Helper()
	v, err := Decode(strings.NewReader(s))
	require.NoError(t, err)
	return v
}

func TestDiffMapIgnoresKeyOrder(t *testing.T) {
	a := mustDecode(t, `{"a": 1, "b": [1, 2], "c": {"x": null, "y": true}}`)
	b := mustDecode(t, `{"c": {"y": true, "x": null}, "b": [1, 2], "a": 1}`)
	assert.Empty(t, Diff(a, b))
	assert.True(t, Equal(a, b))
	assert.NoError(t, Compare("doc", a, b))
}

func TestDiffSequenceIsOrderSensitive(t *testing.T) {
	a := mustDecode(t, `[1, 2]`)
	b := mustDecode(t, `[2, 1]`)
	deltas := Diff(a, b)
	require.Len(t, deltas, 2)
	assert.Equal(t, "$[0]", deltas[0].Path.String())
	assert.Equal(t, difference.ValueMismatch, deltas[0].Kind)
	assert.Equal(t, "$[1]", deltas[1].Path.String())
}

func TestDiffMissingAndExtraKeys(t *testing.T) {
	a := mustDecode(t, `{"keep": 1, "gone": 2}`)
	b := mustDecode(t, `{"keep": 1, "new": 3}`)
	deltas := Diff(a, b)
	require.Len(t, deltas, 2)
	assert.Equal(t, difference.Removed, deltas[0].Kind)
	assert.Equal(t, "$.gone", deltas[0].Path.String())
	assert.Equal(t, difference.Added, deltas[1].Kind)
	assert.Equal(t, "$.new", deltas[1].Path.String())
}

func TestDiffLengthMismatch(t *testing.T) {
	a := mustDecode(t, `{"list": [1, 2, 3]}`)
	b := mustDecode(t, `{"list": [1, 5]}`)
	deltas := Diff(a, b)
	require.Len(t, deltas, 2)
	assert.Equal(t, difference.CountMismatch, deltas[0].Kind)
	assert.Equal(t, "$.list", deltas[0].Path.String())
	assert.Equal(t, "$.list[1]", deltas[1].Path.String())
}

func TestDiffScalarTypes(t *testing.T) {
	deltas := Diff(mustDecode(t, `"1"`), mustDecode(t, `1`))
	require.Len(t, deltas, 1)
	assert.Equal(t, difference.TypeMismatch, deltas[0].Kind)
	assert.Equal(t, "$", deltas[0].Path.String())
}

func TestDiffNumbersAreExact(t *testing.T) {
	assert.Empty(t, Diff(mustDecode(t, `1`), mustDecode(t, `1.0`)))
	assert.Empty(t, Diff(mustDecode(t, `1e2`), mustDecode(t, `100`)))
	assert.NotEmpty(t, Diff(mustDecode(t, `0.1`), mustDecode(t, `0.1000001`)))
	assert.NotEmpty(t, Diff(mustDecode(t, `9007199254740993`), mustDecode(t, `9007199254740992`)))
	assert.NotEmpty(t, Diff(mustDecode(t, `9007199254740993`), mustDecode(t, `9007199254740992.0`)))
	assert.NotEmpty(t, Diff(mustDecode(t, `18446744073709551617`), mustDecode(t, `18446744073709551616`)))
	assert.NotEmpty(t, Diff(mustDecode(t, `0.30000000000000000001`), mustDecode(t, `0.3`)))
	assert.Empty(t, Diff(mustDecode(t, `18446744073709551616`), mustDecode(t, `1.8446744073709551616e19`)))
	assert.Empty(t, Diff(mustDecode(t, `-0`), mustDecode(t, `0`)))
}

func TestDiffIsDeterministic(t *testing.T) {
	a := mustDecode(t, `{"z": 1, "m": 2, "a": 3}`)
	b := mustDecode(t, `{"z": 0, "m": 0, "a": 0}`)
	first := Diff(a, b)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Diff(a, b))
	}
	assert.Equal(t, "$.a", first[0].Path.String())
	assert.Equal(t, "$.z", first[2].Path.String())
}

func TestPathQuotesNonIdentifierKeys(t *testing.T) {
	a := mustDecode(t, `{"0": {"a b": 1}}`)
	b := mustDecode(t, `{"0": {"a b": 2}}`)
	deltas := Diff(a, b)
	require.Len(t, deltas, 1)
	assert.Equal(t, `$["0"]["a b"]`, deltas[0].Path.String())
}

func TestCompareEmbedsAllDifferences(t *testing.T) {
	a := mustDecode(t, `{"a": 1, "b": 2}`)
	b := mustDecode(t, `{"a": 3, "b": 4}`)
	err := Compare("materials[0]", a, b)
	require.Error(t, err)
	var ce *difference.ComparisonError
	require.ErrorAs(t, err, &ce)
	assert.Len(t, ce.Differences, 2)
	assert.Contains(t, err.Error(), "compared materials[0] not equal")
	assert.Contains(t, err.Error(), "$.a: 1 != 3")
	assert.Contains(t, ce.Detail, "+++ current")
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	_, err := Decode(strings.NewReader(`{} {}`))
	assert.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	v := MapOf(map[string]Value{
		"n": IntValue(3),
		"s": SequenceOf(StringValue("x"), BoolValue(false), NullValue()),
	})
	assert.Equal(t, `{"n":3,"s":["x",false,null]}`, v.String())
	var back Value
	require.NoError(t, back.UnmarshalJSON([]byte(v.String())))
	assert.True(t, Equal(v, back))
}
