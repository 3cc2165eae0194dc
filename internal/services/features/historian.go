package features

import (
	"fmt"
	"strings"

	"LatentTrader/internal/domain/errs"
	"LatentTrader/internal/domain/models"
)

// TypeFilter keeps windows by the sign of their label.
type TypeFilter string

const (
	TypeAll   TypeFilter = "all"
	TypeRises TypeFilter = "rises"
	TypeFalls TypeFilter = "falls"
)

// SetFilter restricts the scan to one half of the timeline.
type SetFilter string

const (
	SetAll        SetFilter = "all"
	SetFirstHalf  SetFilter = "first_half"
	SetSecondHalf SetFilter = "second_half"
)

// ParseTypeFilter maps a config string to a TypeFilter.
func ParseTypeFilter(s string) (TypeFilter, error) {
	switch f := TypeFilter(strings.ToLower(s)); f {
	case TypeAll, TypeRises, TypeFalls:
		return f, nil
	case "":
		return TypeAll, nil
	default:
		return "", errs.InvalidArgumentf("type filter %q", s)
	}
}

// ParseSetFilter maps a config string to a SetFilter.
func ParseSetFilter(s string) (SetFilter, error) {
	switch f := SetFilter(strings.ToLower(s)); f {
	case SetAll, SetFirstHalf, SetSecondHalf:
		return f, nil
	case "":
		return SetAll, nil
	default:
		return "", errs.InvalidArgumentf("set filter %q", s)
	}
}

// History holds parallel arrays of windows, labels and volumes.
type History struct {
	Features [][]float64
	Labels   []float64
	Volumes  []float64
}

// Len returns the number of extracted windows.
func (h *History) Len() int { return len(h.Features) }

// bounds returns the [left, right) scan range for a set filter.
func bounds(n int, set SetFilter) (int, int, error) {
	switch set {
	case SetAll:
		return 0, n, nil
	case SetFirstHalf:
		return 0, n / 2, nil
	case SetSecondHalf:
		return n / 2, n, nil
	default:
		return 0, 0, errs.InvalidArgumentf("set filter %q", set)
	}
}

func keep(label float64, typ TypeFilter) bool {
	switch typ {
	case TypeRises:
		return label > 0
	case TypeFalls:
		return label < 0
	default:
		return true
	}
}

// ExtractWindows scans the timeline with a window of windowSize closes.
// Every window at position i is labeled with the close-to-close step right
// after it. If i+windowSize runs past the timeline the label is clamped to
// the last observed close.
func ExtractWindows(timeline []models.Candle, windowSize int, typ TypeFilter, set SetFilter) (*History, error) {
	if windowSize <= 0 {
		return nil, errs.InvalidArgumentf("window size %d must be positive", windowSize)
	}
	if typ != TypeAll && typ != TypeRises && typ != TypeFalls {
		return nil, errs.InvalidArgumentf("type filter %q", typ)
	}
	n := len(timeline)
	left, right, err := bounds(n, set)
	if err != nil {
		return nil, err
	}
	if windowSize >= right-left {
		return nil, errs.Shapef("window size %d leaves no positions in [%d,%d)", windowSize, left, right)
	}

	h := &History{
		Features: make([][]float64, 0, right-left-windowSize),
		Labels:   make([]float64, 0, right-left-windowSize),
		Volumes:  make([]float64, 0, right-left-windowSize),
	}

	for i := left; i < right-windowSize; i++ {
		var label float64
		if i+windowSize >= n {
			label = timeline[n-1].Close
		} else {
			label = timeline[i+windowSize].Close - timeline[i+windowSize-1].Close
		}
		if !keep(label, typ) {
			continue
		}

		window := make([]float64, windowSize)
		volume := 0.0
		for j := i; j < i+windowSize; j++ {
			window[j-i] = timeline[j].Close
			volume += timeline[j].Volume
		}
		h.Features = append(h.Features, window)
		h.Labels = append(h.Labels, label)
		h.Volumes = append(h.Volumes, volume)
	}
	return h, nil
}

// NormalizeAll applies norm to every window in place.
func (h *History) NormalizeAll(norm Normalizer) error {
	for i, f := range h.Features {
		if _, err := norm.Apply(f); err != nil {
			return fmt.Errorf("window %d: %w", i, err)
		}
	}
	return nil
}
