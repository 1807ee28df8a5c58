package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adlake/adlake/pkg/batch"
)

func TestAggregate_SumsAcrossTimeSeries(t *testing.T) {
	b := batch.New("campaign_id", "date", "clicks", "cost")
	require.NoError(t, b.Append(batch.Row{"C1", "2024-03-01", int64(5), 1.25}))
	require.NoError(t, b.Append(batch.Row{"C1", "2024-03-02", int64(7), 2.50}))
	require.NoError(t, b.Append(batch.Row{"C2", "2024-03-01", int64(3), 0.75}))

	agg, err := Aggregate(b, []string{"campaign_id"}, []string{"clicks", "cost"})
	require.NoError(t, err)

	assert.Equal(t, []string{"campaign_id", "clicks", "cost"}, agg.Columns())
	require.Equal(t, 2, agg.Len())
	assert.Equal(t, "C1", agg.Value(0, "campaign_id"))
	assert.Equal(t, int64(12), agg.Value(0, "clicks"))
	assert.InDelta(t, 3.75, agg.Value(0, "cost").(float64), 1e-9)
	assert.Equal(t, "C2", agg.Value(1, "campaign_id"))
	assert.Equal(t, int64(3), agg.Value(1, "clicks"))
}

func TestAggregate_DropsDuplicateRowsBeforeSumming(t *testing.T) {
	// Overlapping upstream queries return the same entity-date row
	// twice; summing both would double-count.
	b := batch.New("campaign_id", "date", "clicks")
	require.NoError(t, b.Append(batch.Row{"C1", "2024-03-01", int64(5)}))
	require.NoError(t, b.Append(batch.Row{"C1", "2024-03-01", int64(5)}))

	agg, err := Aggregate(b, []string{"campaign_id"}, []string{"clicks"})
	require.NoError(t, err)
	require.Equal(t, 1, agg.Len())
	assert.Equal(t, int64(5), agg.Value(0, "clicks"))
}

func TestAggregate_FullRowDedupWithoutDateColumn(t *testing.T) {
	b := batch.New("campaign_id", "clicks")
	require.NoError(t, b.Append(batch.Row{"C1", int64(5)}))
	require.NoError(t, b.Append(batch.Row{"C1", int64(5)}))
	require.NoError(t, b.Append(batch.Row{"C1", int64(7)}))

	agg, err := Aggregate(b, []string{"campaign_id"}, []string{"clicks"})
	require.NoError(t, err)
	require.Equal(t, 1, agg.Len())
	// Exact duplicates collapse, distinct metric values still sum.
	assert.Equal(t, int64(12), agg.Value(0, "clicks"))
}

func TestAggregate_Idempotent(t *testing.T) {
	b := batch.New("campaign_id", "date", "clicks")
	require.NoError(t, b.Append(batch.Row{"C1", "2024-03-01", int64(5)}))
	require.NoError(t, b.Append(batch.Row{"C1", "2024-03-02", int64(7)}))

	once, err := Aggregate(b, []string{"campaign_id"}, []string{"clicks"})
	require.NoError(t, err)
	twice, err := Aggregate(once, []string{"campaign_id"}, []string{"clicks"})
	require.NoError(t, err)

	require.Equal(t, once.Len(), twice.Len())
	assert.Equal(t, once.Value(0, "clicks"), twice.Value(0, "clicks"))
}

func TestAggregate_RecomputesRatiosFromSummedBases(t *testing.T) {
	b := batch.New("campaign_id", "date", "cost", "clicks", "impressions", "cpc", "cpm", "ctr")
	// Per-day ratios are deliberately wrong; they must be rebuilt from
	// the summed counters, not summed themselves.
	require.NoError(t, b.Append(batch.Row{"C1", "2024-03-01", 2.0, int64(4), int64(200), 99.0, 99.0, 99.0}))
	require.NoError(t, b.Append(batch.Row{"C1", "2024-03-02", 5.0, int64(6), int64(300), 99.0, 99.0, 99.0}))

	agg, err := Aggregate(b, []string{"campaign_id"},
		[]string{"cost", "clicks", "impressions", "cpc", "cpm", "ctr"})
	require.NoError(t, err)
	require.Equal(t, 1, agg.Len())

	// cost=7, clicks=10, impressions=500
	assert.InDelta(t, 0.7, agg.Value(0, "cpc").(float64), 1e-9)
	assert.InDelta(t, 14.0, agg.Value(0, "cpm").(float64), 1e-9)
	assert.InDelta(t, 2.0, agg.Value(0, "ctr").(float64), 1e-9)
}

func TestAggregate_ZeroDenominatorRatioIsZero(t *testing.T) {
	b := batch.New("campaign_id", "cost", "clicks", "cpc")
	require.NoError(t, b.Append(batch.Row{"C1", 3.0, int64(0), 0.0}))

	agg, err := Aggregate(b, []string{"campaign_id"}, []string{"cost", "clicks", "cpc"})
	require.NoError(t, err)
	assert.Equal(t, float64(0), agg.Value(0, "cpc"))
}

func TestAggregate_NullMetricCellsAreIgnored(t *testing.T) {
	b := batch.New("campaign_id", "date", "clicks")
	require.NoError(t, b.Append(batch.Row{"C1", "2024-03-01", nil}))
	require.NoError(t, b.Append(batch.Row{"C1", "2024-03-02", int64(4)}))

	agg, err := Aggregate(b, []string{"campaign_id"}, []string{"clicks"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), agg.Value(0, "clicks"))
}

func TestAggregate_MissingColumnsFail(t *testing.T) {
	b := batch.New("campaign_id", "clicks")

	_, err := Aggregate(b, []string{"adset_id"}, []string{"clicks"})
	assert.Error(t, err)

	_, err = Aggregate(b, []string{"campaign_id"}, []string{"spend"})
	assert.Error(t, err)
}
