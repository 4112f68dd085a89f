package volume

import (
	"runtime"
	"sync"

	"aortec/internal/models"
)

// Resample inserts factor-1 linearly interpolated planes between every pair
// of consecutive slices and divides the slice spacing by factor. A factor
// below 2 returns the input unchanged. Planes are filled in parallel.
func Resample(vol *models.Volume, factor int) *models.Volume {
	if factor < 2 || vol.Depth < 2 {
		return vol
	}

	depth := (vol.Depth-1)*factor + 1
	out := models.NewVolume(depth, vol.Rows, vol.Cols)
	out.Spacing = vol.Spacing
	out.Spacing.Slice = vol.Spacing.Slice / float64(factor)
	out.Origin = vol.Origin
	out.Modality = vol.Modality
	out.Filenames = make([]string, depth)
	for i, name := range vol.Filenames {
		out.Filenames[i*factor] = name
	}

	numCores := runtime.NumCPU()
	slicesPerCore := (vol.Depth + numCores - 1) / numCores

	var wg sync.WaitGroup
	for c := 0; c < numCores; c++ {
		start := c * slicesPerCore
		end := start + slicesPerCore
		if end > vol.Depth {
			end = vol.Depth
		}
		if start >= end {
			break
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				cur := vol.Plane(i)
				copy(out.Plane(i*factor), cur)

				if i == vol.Depth-1 {
					continue
				}
				next := vol.Plane(i + 1)
				for z := 1; z < factor; z++ {
					t := float64(z) / float64(factor)
					dst := out.Plane(i*factor + z)
					for k := range dst {
						dst[k] = (1-t)*cur[k] + t*next[k]
					}
				}
			}
		}(start, end)
	}
	wg.Wait()

	return out
}
