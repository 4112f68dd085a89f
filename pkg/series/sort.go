package series

import (
	"sort"

	"aortec/internal/models"
)

// KeyKind names the attribute a series was ordered by
type KeyKind int

const (
	KeyInstanceNumber KeyKind = iota
	KeySliceLocation
	KeyPositionZ
	KeyFilename
)

func (k KeyKind) String() string {
	switch k {
	case KeyInstanceNumber:
		return "instance number"
	case KeySliceLocation:
		return "slice location"
	case KeyPositionZ:
		return "patient position z"
	}
	return "filename"
}

// Positional reports whether the key carries physical distance
func (k KeyKind) Positional() bool {
	return k == KeySliceLocation || k == KeyPositionZ
}

// KeyValue returns the value of kind k for s and whether it is present
func KeyValue(s *models.Slice, k KeyKind) (float64, bool) {
	switch k {
	case KeyInstanceNumber:
		if s.InstanceNumber != nil {
			return float64(*s.InstanceNumber), true
		}
	case KeySliceLocation:
		if s.SliceLocation != nil {
			return *s.SliceLocation, true
		}
	case KeyPositionZ:
		if s.PositionZ != nil {
			return *s.PositionZ, true
		}
	}
	return 0, false
}

// ChooseKey returns the highest priority key that every slice carries.
// A key only some slices carry cannot order the whole series, so it is passed over.
func ChooseKey(slices []models.Slice) KeyKind {
	for _, k := range []KeyKind{KeyInstanceNumber, KeySliceLocation, KeyPositionZ} {
		all := len(slices) > 0
		for i := range slices {
			if _, ok := KeyValue(&slices[i], k); !ok {
				all = false
				break
			}
		}
		if all {
			return k
		}
	}
	return KeyFilename
}

// SortSlices orders slices ascending by the chosen key with filename as the
// tie-break, and returns the key used
func SortSlices(slices []models.Slice) KeyKind {
	sort.SliceStable(slices, func(i, j int) bool {
		return slices[i].Filename < slices[j].Filename
	})

	key := ChooseKey(slices)
	if key == KeyFilename {
		return key
	}

	sort.SliceStable(slices, func(i, j int) bool {
		a, _ := KeyValue(&slices[i], key)
		b, _ := KeyValue(&slices[j], key)
		return a < b
	})
	return key
}
