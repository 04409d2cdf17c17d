package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	r, ok := ParseRole(" Admin ")
	require.True(t, ok)
	assert.Equal(t, RoleAdmin, r)
	_, ok = ParseRole("owner")
	assert.False(t, ok)
	assert.Equal(t, RoleViewer, RoleOrViewer(""))
	assert.True(t, RoleContributor.CanWrite())
	assert.False(t, RoleViewer.CanWrite())
	assert.False(t, RoleContributor.IsAdmin())
}

func TestCoerceNumber(t *testing.T) {
	assert.Equal(t, 5.0, CoerceNumber("5"))
	assert.Equal(t, 2.5, CoerceNumber(" 2.5 "))
	assert.Equal(t, 0.0, CoerceNumber("abc"))
	assert.Equal(t, 0.0, CoerceNumber(nil))
	assert.Equal(t, 7.0, CoerceNumber(7))
	for _, raw := range []any{"NaN", "Inf", "-infinity", "+Inf", "1e999", math.NaN(), math.Inf(1), float32(math.Inf(-1))} {
		assert.Equal(t, 0.0, CoerceNumber(raw), "%v", raw)
	}
	assert.Equal(t, "12", FormatNumber(12))
	assert.Equal(t, "1.5", FormatNumber(1.5))
}

func TestTotalRule(t *testing.T) {
	rule := TotalRule{Add: []string{"qtyIn"}, Subtract: []string{"qtyOut"}}
	assert.True(t, rule.Enabled())
	assert.Equal(t, 7.0, rule.Compute(map[string]any{"qtyIn": 10.0, "qtyOut": "3"}))
	assert.False(t, TotalRule{}.Enabled())
}

func TestFormatValue(t *testing.T) {
	num := Field{Key: "q", Kind: KindNumber}
	txt := Field{Key: "n", Kind: KindText}
	assert.Equal(t, "0", FormatValue(num, nil))
	assert.Equal(t, "3", FormatValue(num, "3"))
	assert.Equal(t, "", FormatValue(txt, nil))
	assert.Equal(t, "M-001", FormatValue(txt, "M-001"))
	assert.Equal(t, "2026-01-02T00:00:00Z", FormatValue(txt, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)))
}

func TestProfileRoundTripDefaults(t *testing.T) {
	p := ProfileFromData("u1", map[string]any{"role": "bogus"}, time.Time{}, time.Time{})
	assert.Equal(t, RoleViewer, p.Role)
	assert.False(t, p.Deleted())

	deleted := time.Date(2026, 3, 4, 5, 6, 7, 8, time.UTC)
	p.DeletedAt = &deleted
	back := ProfileFromData("u1", p.Data(), time.Time{}, time.Time{})
	require.NotNil(t, back.DeletedAt)
	assert.True(t, back.DeletedAt.Equal(deleted))
}

func TestNewRecordSplitsCreatedBy(t *testing.T) {
	r := NewRecord("r1", map[string]any{"name": "pen", KeyCreatedBy: "u1"}, time.Time{}, time.Time{})
	assert.Equal(t, "u1", r.CreatedBy)
	assert.Equal(t, map[string]any{"name": "pen"}, r.Fields)
	assert.Nil(t, r.Value("missing"))
}

func TestCollectionValidate(t *testing.T) {
	c := Collection{
		Name:   "office",
		Fields: Schema{{Key: "name", Required: true}, {Key: "qtyIn", Kind: KindNumber}},
		Total:  TotalRule{Add: []string{"qtyIn"}},
	}
	require.NoError(t, c.Validate())
	assert.Equal(t, "office", c.Title)
	assert.Equal(t, KindText, c.Fields[0].Kind)
	assert.Equal(t, "name", c.Fields[0].Label)
	assert.Equal(t, ExportAll, c.ExportScope)

	bad := Collection{Name: "x", Fields: Schema{{Key: "name"}}, Total: TotalRule{Add: []string{"name"}}}
	assert.Error(t, bad.Validate())
	assert.Error(t, (&Collection{Name: "users", Fields: Schema{{Key: "a"}}}).Validate())
	assert.Error(t, (&Collection{Name: "x", Fields: Schema{{Key: "id"}}}).Validate())
	assert.Error(t, (&Collection{Name: "x", Fields: Schema{{Key: "a"}, {Key: "a"}}}).Validate())
}
