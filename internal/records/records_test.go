package records

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derivdiff/internal/difference"
	"derivdiff/internal/value"
)

func frags(n int) []Fragment {
	out := make([]Fragment, n)
	for i := range out {
		out[i] = Fragment{InstanceID: uint64(i + 1), GeometryID: uint64(10 + i), MaterialID: uint64(i % 2)}
	}
	return out
}

func TestFragmentsEqual(t *testing.T) {
	assert.NoError(t, Fragments(frags(4), frags(4)))
}

func TestFragmentsCountMismatchInspectsNothing(t *testing.T) {
	visited := 0
	err := Ordered("fragments", frags(3), frags(4), func(int, Fragment, Fragment) error {
		visited++
		return nil
	})
	require.Error(t, err)
	assert.Zero(t, visited)

	var ce *difference.ComparisonError
	require.ErrorAs(t, err, &ce)
	require.Len(t, ce.Differences, 1)
	assert.Equal(t, difference.CountMismatch, ce.Differences[0].Kind)
}

func TestFragmentsStopAtFirstDivergentIndex(t *testing.T) {
	a, b := frags(6), frags(6)
	b[2].GeometryID = 99
	b[4].MaterialID = 7

	err := Fragments(a, b)
	require.Error(t, err)
	var ce *difference.ComparisonError
	require.ErrorAs(t, err, &ce)
	require.Len(t, ce.Differences, 1)
	assert.Equal(t, "[2].geometryId", ce.Differences[0].Location)
	assert.Contains(t, err.Error(), "index 2")
	assert.NotContains(t, err.Error(), "[4]")
}

func TestOrderedVisitsNothingAfterFailure(t *testing.T) {
	var visited []int
	err := Ordered("items", []int{1, 2, 3, 4}, []int{1, 2, 0, 0}, func(i, x, y int) error {
		visited = append(visited, i)
		if x != y {
			return difference.Compare("items", []difference.Difference{
				difference.New(difference.ValueMismatch, "x", "%d != %d", x, y),
			})
		}
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, []int{0, 1, 2}, visited)
}

func TestStructuredMaterials(t *testing.T) {
	mat := func(color string) value.Value {
		v, err := value.Decode(strings.NewReader(`{"userassets":["0"],"materials":{"0":{"definition":"SimplePhong","properties":{"colors":{"generic_diffuse":"` + color + `"}}}}}`))
		require.NoError(t, err)
		return v
	}
	a := []value.Value{mat("red"), mat("green"), mat("blue")}
	b := []value.Value{mat("red"), mat("teal"), mat("black")}

	err := Structured("materials", a, b)
	require.Error(t, err)
	var ce *difference.ComparisonError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "materials at index 1", ce.Subject)
	require.Len(t, ce.Differences, 1)
	assert.Contains(t, ce.Differences[0].Location, "generic_diffuse")

	assert.NoError(t, Structured("materials", a, a))
}

func TestValuesFromTypedRecords(t *testing.T) {
	type geom struct {
		FragType  int `json:"fragType"`
		PrimCount int `json:"primCount"`
	}
	a, err := Values([]geom{{1, 12}, {1, 4}})
	require.NoError(t, err)
	b, err := Values([]geom{{1, 12}, {1, 5}})
	require.NoError(t, err)

	err = Structured("geometries", a, b)
	require.Error(t, err)
	var ce *difference.ComparisonError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "$.primCount", ce.Differences[0].Location)
}
