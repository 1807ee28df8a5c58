package batch

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMaps_RectangularUnion(t *testing.T) {
	b := FromMaps([]map[string]interface{}{
		{"Campaign_ID": "C1", "clicks": int64(5)},
		{"campaign_id": "C2", "impressions": int64(100)},
	})

	assert.Equal(t, []string{"campaign_id", "clicks", "impressions"}, b.Columns())
	require.Equal(t, 2, b.Len())

	// Keys absent from a record become NULL, keeping rows rectangular.
	assert.Equal(t, "C1", b.Value(0, "campaign_id"))
	assert.Nil(t, b.Value(0, "impressions"))
	assert.Nil(t, b.Value(1, "clicks"))
}

func TestFromJSON(t *testing.T) {
	data := []byte(`[
		{"campaign_id": "C1", "clicks": 5, "date": "2024-03-01"},
		{"campaign_id": "C2", "clicks": 7, "date": "2024-03-01"}
	]`)
	b, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, float64(5), b.Value(0, "clicks"))

	_, err = FromJSON([]byte(`{"not": "an array"}`))
	assert.Error(t, err)
}

func TestAppend_WidthMismatch(t *testing.T) {
	b := New("a", "b")
	require.NoError(t, b.Append(Row{1, 2}))
	assert.Error(t, b.Append(Row{1}))
}

func TestProject(t *testing.T) {
	b := New("a", "b", "c")
	require.NoError(t, b.Append(Row{"x", int64(1), true}))

	p, err := b.Project([]string{"c", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, p.Columns())
	assert.Equal(t, Row{true, "x"}, p.Row(0))

	_, err = b.Project([]string{"missing"})
	assert.Error(t, err)
}

func TestWithColumn(t *testing.T) {
	b := New("clicks")
	require.NoError(t, b.Append(Row{int64(4)}))

	extended := b.WithColumn("doubled", func(row Row) interface{} {
		v, _ := ToInt(row[0])
		return v * 2
	})
	assert.Equal(t, int64(8), extended.Value(0, "doubled"))
	// Original batch is untouched.
	assert.False(t, b.HasColumn("doubled"))

	rewritten := extended.WithColumn("doubled", func(Row) interface{} { return int64(0) })
	assert.Equal(t, int64(0), rewritten.Value(0, "doubled"))
	assert.Equal(t, 2, rewritten.Width())
}

func TestDistinctOn(t *testing.T) {
	b := New("campaign_id", "clicks")
	require.NoError(t, b.Append(Row{"C1", int64(5)}))
	require.NoError(t, b.Append(Row{"C1", int64(9)}))
	require.NoError(t, b.Append(Row{"C2", int64(5)}))

	d := b.DistinctOn([]string{"campaign_id"})
	require.Equal(t, 2, d.Len())
	// First occurrence wins.
	assert.Equal(t, int64(5), d.Value(0, "clicks"))
}

func TestDropExactDuplicates(t *testing.T) {
	b := New("campaign_id", "clicks")
	require.NoError(t, b.Append(Row{"C1", int64(5)}))
	require.NoError(t, b.Append(Row{"C1", int64(5)}))
	require.NoError(t, b.Append(Row{"C1", int64(6)}))

	assert.Equal(t, 2, b.DropExactDuplicates().Len())
}

func TestTupleKey_DistinguishesNullFromEmpty(t *testing.T) {
	b := New("k1", "k2")
	require.NoError(t, b.Append(Row{"", "x"}))
	require.NoError(t, b.Append(Row{nil, "x"}))

	k0 := TupleKey(b.Row(0), []int{0, 1})
	k1 := TupleKey(b.Row(1), []int{0, 1})
	assert.NotEqual(t, k0, k1)
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-01-02 00:00:00", "2024-01-02"},
		{"2024-01-02 08:30:00", "2024-01-02 08:30:00"},
		{"5.50", "5.5"},
		{"5.00", "5"},
		{"C1", "C1"},
		{"v1.20", "v1.20"}, // not a number, left alone
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeKey(tt.in), tt.in)
	}
}

func TestKeyFormat_DecimalMatchesWarehouseRendering(t *testing.T) {
	// Round(2) pins the exponent, so the decimal renders as "5.50";
	// the warehouse renders the stored value as "5.5". Key formatting
	// must reconcile the two.
	d := decimal.RequireFromString("5.5").Round(2)
	assert.Equal(t, "5.50", d.String())
	assert.Equal(t, "5.5", KeyFormat(d))
	assert.Equal(t, NullKeyMarker, KeyFormat(nil))
}

func TestFormat(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ts := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)

	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{"abc", "abc"},
		{int64(42), "42"},
		{3.50, "3.5"},
		{decimal.NewFromFloat(2.25), "2.25"},
		{day, "2024-03-01"},
		{ts, "2024-03-01 08:30:00"},
		{true, "true"},
		{false, "false"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.in))
	}
}

func TestToFloatToInt(t *testing.T) {
	f, ok := ToFloat("12.5")
	require.True(t, ok)
	assert.Equal(t, 12.5, f)

	_, ok = ToFloat("not a number")
	assert.False(t, ok)

	i, ok := ToInt(float64(7))
	require.True(t, ok)
	assert.Equal(t, int64(7), i)

	_, ok = ToInt(7.5)
	assert.False(t, ok)

	i, ok = ToInt(decimal.NewFromInt(9))
	require.True(t, ok)
	assert.Equal(t, int64(9), i)
}

func TestParseDate(t *testing.T) {
	d, ok := ParseDate("2024-03-01")
	require.True(t, ok)
	assert.Equal(t, 2024, d.Year())

	d, ok = ParseDate("2024-03-01 08:30:00")
	require.True(t, ok)
	assert.Equal(t, 8, d.Hour())

	_, ok = ParseDate("03/01/2024")
	assert.False(t, ok)

	_, ok = ParseDate(int64(20240301))
	assert.False(t, ok)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.23, Round2(1.234))
	assert.Equal(t, 1.24, Round2(1.235))
	assert.Equal(t, -2.57, Round2(-2.565))
}
