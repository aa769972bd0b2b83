package schema

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shisoft/Nebuchadnezzar/pkg/cell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildComputesFixedOffsetsAndStaticBound(t *testing.T) {
	s, err := Build(1, "widget", nil, []Field{
		{Name: "count", Type: cell.TypeI64},
		{Name: "label", Type: cell.TypeString},
		{Name: "flag", Type: cell.TypeBool, Nullable: true},
	}, false)
	require.NoError(t, err)

	assert.Equal(t, 0, s.FieldIndex["count"].Offset)
	assert.Equal(t, cell.FixedSize(cell.TypeI64), s.FieldIndex["label"].Offset)
	assert.False(t, s.FieldIndex["label"].IsFixed(), "strings live in the variable region")
	assert.True(t, s.FieldIndex["flag"].IsFixed())
	assert.Equal(t, s.StaticBound,
		s.FieldIndex["count"].EncodedWidth()+s.FieldIndex["label"].EncodedWidth()+s.FieldIndex["flag"].EncodedWidth())
}

func TestBuildRejectsDuplicateFieldNames(t *testing.T) {
	_, err := Build(1, "widget", nil, []Field{
		{Name: "count", Type: cell.TypeI64},
		{Name: "count", Type: cell.TypeI64},
	}, false)
	assert.Error(t, err)
}

func TestPlanWriteAndDecodeRoundTripFixedAndVariableFields(t *testing.T) {
	s, err := Build(1, "widget", nil, []Field{
		{Name: "count", Type: cell.TypeI64},
		{Name: "label", Type: cell.TypeString},
	}, false)
	require.NoError(t, err)

	body := map[string]cell.Value{
		"count": cell.I64Value(42),
		"label": cell.StringValue("hello"),
	}
	plan, err := s.PlanWrite(body, nil)
	require.NoError(t, err)

	fixed := make([]byte, plan.FixedLen)
	tail := make([]byte, plan.TailLen)
	require.NoError(t, plan.Apply(fixed, tail))

	decoded, _, err := s.Decode(fixed, tail, nil)
	require.NoError(t, err)
	assert.Equal(t, cell.I64Value(42), decoded["count"])
	assert.Equal(t, cell.StringValue("hello"), decoded["label"])
}

// TestEncodeDecodeRoundTripProperty checks the plan/apply/decode round-trip
// invariant: for any int64 count and any string label, planning a write and
// decoding it back must reproduce the same values.
func TestEncodeDecodeRoundTripProperty(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping property-based test in short mode")
	}
	s, err := Build(1, "widget", nil, []Field{
		{Name: "count", Type: cell.TypeI64},
		{Name: "label", Type: cell.TypeString},
	}, false)
	require.NoError(t, err)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)
	properties.Property("plan/apply/decode round-trips count and label", prop.ForAll(
		func(count int64, label string) bool {
			body := map[string]cell.Value{
				"count": cell.I64Value(count),
				"label": cell.StringValue(label),
			}
			plan, err := s.PlanWrite(body, nil)
			if err != nil {
				return false
			}
			fixed := make([]byte, plan.FixedLen)
			tail := make([]byte, plan.TailLen)
			if err := plan.Apply(fixed, tail); err != nil {
				return false
			}
			decoded, _, err := s.Decode(fixed, tail, nil)
			if err != nil {
				return false
			}
			return decoded["count"].I64 == count && decoded["label"].Str == label
		},
		gen.Int64(),
		gen.AlphaString(),
	))
	properties.TestingRun(t)
}

func TestRegistryGetReturnsErrSchemaNotFoundForUnregisteredId(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(99)
	assert.ErrorIs(t, err, ErrSchemaNotFound)

	s, err := Build(99, "x", nil, []Field{{Name: "a", Type: cell.TypeI64}}, false)
	require.NoError(t, err)
	r.Register(s)
	got, err := r.Get(99)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	r.Remove(99)
	_, err = r.Get(99)
	assert.ErrorIs(t, err, ErrSchemaNotFound)
}
