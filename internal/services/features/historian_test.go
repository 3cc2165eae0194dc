package features

import (
	"testing"
	"time"

	"LatentTrader/internal/domain/errs"
	"LatentTrader/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timeline(closes []float64, volume float64) []models.Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			Time:   base.Add(time.Duration(i) * time.Minute),
			Low:    c - 1,
			High:   c + 1,
			Open:   c,
			Close:  c,
			Volume: volume,
		}
	}
	return out
}

func TestExtractWindowsRisingTimeline(t *testing.T) {
	closes := []float64{10, 11, 13, 16, 20, 25, 31, 38, 46, 55}
	h, err := ExtractWindows(timeline(closes, 2), 3, TypeAll, SetAll)
	require.NoError(t, err)

	require.Equal(t, 7, h.Len())
	require.Len(t, h.Labels, 7)
	require.Len(t, h.Volumes, 7)
	for i := 0; i < h.Len(); i++ {
		assert.Equal(t, closes[i:i+3], h.Features[i])
		assert.Greater(t, h.Labels[i], 0.0)
		assert.InDelta(t, closes[i+3]-closes[i+2], h.Labels[i], 1e-12)
		assert.InDelta(t, 6.0, h.Volumes[i], 1e-12)
	}
}

func TestExtractWindowsTypeFilter(t *testing.T) {
	closes := []float64{5, 6, 5, 6, 5, 6, 5, 6}
	tl := timeline(closes, 1)

	rises, err := ExtractWindows(tl, 2, TypeRises, SetAll)
	require.NoError(t, err)
	for _, l := range rises.Labels {
		assert.Greater(t, l, 0.0)
	}

	falls, err := ExtractWindows(tl, 2, TypeFalls, SetAll)
	require.NoError(t, err)
	for _, l := range falls.Labels {
		assert.Less(t, l, 0.0)
	}

	all, err := ExtractWindows(tl, 2, TypeAll, SetAll)
	require.NoError(t, err)
	assert.Equal(t, all.Len(), rises.Len()+falls.Len())
}

func TestExtractWindowsSetFilter(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = float64(100 + i)
	}
	tl := timeline(closes, 1)

	first, err := ExtractWindows(tl, 4, TypeAll, SetFirstHalf)
	require.NoError(t, err)
	assert.Equal(t, 10-4, first.Len())
	assert.Equal(t, 100.0, first.Features[0][0])

	second, err := ExtractWindows(tl, 4, TypeAll, SetSecondHalf)
	require.NoError(t, err)
	assert.Equal(t, 10-4, second.Len())
	assert.Equal(t, 110.0, second.Features[0][0])
}

func TestExtractWindowsErrors(t *testing.T) {
	tl := timeline([]float64{1, 2, 3, 4}, 1)

	_, err := ExtractWindows(tl, 4, TypeAll, SetAll)
	assert.ErrorIs(t, err, errs.ErrShape)

	_, err = ExtractWindows(tl, 2, TypeAll, SetFirstHalf)
	assert.ErrorIs(t, err, errs.ErrShape)

	_, err = ExtractWindows(tl, 0, TypeAll, SetAll)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = ExtractWindows(tl, 2, TypeFilter("sideways"), SetAll)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestParseFilters(t *testing.T) {
	tf, err := ParseTypeFilter("RISES")
	require.NoError(t, err)
	assert.Equal(t, TypeRises, tf)

	sf, err := ParseSetFilter("")
	require.NoError(t, err)
	assert.Equal(t, SetAll, sf)

	_, err = ParseSetFilter("third")
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestNormalizeAllStopsOnDegenerateWindow(t *testing.T) {
	h := &History{Features: [][]float64{{1, 2, 3}, {4, 4, 4}}}
	err := h.NormalizeAll(ZScore)
	assert.ErrorIs(t, err, errs.ErrDegenerateVector)
}
