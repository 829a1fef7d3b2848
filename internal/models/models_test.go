package models

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRangeBounds(t *testing.T) {
	now := day(2024, 6, 15)

	start, end, err := Range{Period: "1y"}.Bounds(now)
	require.NoError(t, err)
	assert.Equal(t, day(2023, 6, 15), start)
	assert.Equal(t, now, end)

	start, _, err = Range{Period: "ytd"}.Bounds(now)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 1, 1), start)

	start, end, err = Range{Period: "5y", Start: day(2020, 1, 1), End: day(2021, 1, 1)}.Bounds(now)
	require.NoError(t, err)
	assert.Equal(t, day(2020, 1, 1), start, "explicit start wins over period")
	assert.Equal(t, day(2021, 1, 1), end)

	_, _, err = Range{Start: day(2022, 1, 1), End: day(2021, 1, 1)}.Bounds(now)
	assert.Error(t, err)

	_, _, err = Range{Period: "7w"}.Bounds(now)
	assert.Error(t, err)
}

func TestAlignClosesUnionOfDates(t *testing.T) {
	series := map[string][]Candle{
		"AAA": {
			{Timestamp: day(2024, 1, 2), Close: 10},
			{Timestamp: day(2024, 1, 3), Close: 11},
		},
		"BBB": {
			{Timestamp: day(2024, 1, 3).Add(16 * time.Hour), Close: 20},
			{Timestamp: day(2024, 1, 4), Close: 21},
		},
	}

	frame := AlignCloses(series, []string{"AAA", "BBB"})

	require.Len(t, frame.Dates, 3)
	assert.Equal(t, day(2024, 1, 2), frame.Dates[0])
	assert.Equal(t, 10.0, frame.Values[0][0])
	assert.True(t, math.IsNaN(frame.Values[0][1]))
	assert.Equal(t, 20.0, frame.Values[1][1], "intraday timestamps collapse onto their day")
	assert.True(t, math.IsNaN(frame.Values[2][0]))
	assert.Equal(t, []float64{10, 11}, frame.Column(0)[:2])
}

func TestTableSortAndHead(t *testing.T) {
	tbl := NewTable("coins", "Symbol", "Market Cap", "Rank")
	tbl.AddRow("ETH", 4.0e11, 2)
	tbl.AddRow("BTC", 1.2e12, 1)
	tbl.AddRow("XYZ", math.NaN(), 99)
	tbl.AddRow("SOL", 8.0e10)

	require.NoError(t, tbl.SortBy("market_cap", false))
	assert.Equal(t, "BTC", tbl.Rows[0][0])
	assert.Equal(t, "XYZ", tbl.Rows[3][0], "NaN sorts last")

	require.NoError(t, tbl.SortBy("symbol", true))
	assert.Equal(t, "BTC", tbl.Rows[0][0])

	assert.Error(t, tbl.SortBy("volume", true))

	assert.Equal(t, "", tbl.Rows[2][2], "short rows are padded")

	tbl.Head(2)
	assert.Equal(t, 2, tbl.Len())
}

func TestTableRecordsDropNaN(t *testing.T) {
	tbl := NewTable("x", "A", "B")
	tbl.AddRow("a", math.NaN())

	recs := tbl.Records()
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0]["B"])
	assert.Equal(t, "a", recs[0]["A"])
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "0.1235", FormatCell(0.12345))
	assert.Equal(t, "-", FormatCell(math.NaN()))
	assert.Equal(t, "2024-01-02", FormatCell(day(2024, 1, 2)))
	assert.Equal(t, "7", FormatCell(7))
	assert.Equal(t, "yes", FormatCell(true))
}
