// Package threshold turns optional user bounds and a volume's intensity
// distribution into a concrete intensity window, relaxing it along a fixed
// ladder when it selects too little of the volume.
package threshold

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"aortec/internal/logger"
	"aortec/internal/models"
)

// Stage names the rung of the relaxation ladder that produced a window
type Stage string

const (
	StageManual     Stage = "manual"
	StagePercentile Stage = "percentile"
	StageWidened    Stage = "widened percentile"
	StageMedian     Stage = "median relative"
)

// Options controls selection. Percentiles are in [0, 100].
type Options struct {
	SampleCap       int
	LowerPercentile float64
	UpperPercentile float64
	WidenedLower    float64
	WidenedUpper    float64
	MedianFactor    float64
	MinVoxels       int

	// FallbackLower and FallbackUpper are used when no foreground voxel exists to sample
	FallbackLower float64
	FallbackUpper float64

	Logger logger.ILogger
}

// DefaultOptions returns the standard ladder: 25/75, then 10/90, then 0.8 x median
func DefaultOptions() Options {
	return Options{
		SampleCap:       200000,
		LowerPercentile: 25,
		UpperPercentile: 75,
		WidenedLower:    10,
		WidenedUpper:    90,
		MedianFactor:    0.8,
		MinVoxels:       100,
		FallbackLower:   50,
		FallbackUpper:   200,
	}
}

// Result is the outcome of Select
type Result struct {
	Pair      models.ThresholdPair
	Stage     Stage
	MaskCount int

	// Attempts lists every window tried, in order
	Attempts []Attempt

	// Exhausted is set when no rung reached MinVoxels; Pair is then the
	// attempt that selected the most voxels
	Exhausted bool
}

// Attempt is one rung of the ladder
type Attempt struct {
	Stage     Stage
	Pair      models.ThresholdPair
	MaskCount int
}

// Selector chooses threshold windows
type Selector struct {
	opts Options
	log  logger.ILogger
}

// NewSelector creates a selector, filling unset options from DefaultOptions
func NewSelector(opts Options) *Selector {
	def := DefaultOptions()
	if opts.SampleCap <= 0 {
		opts.SampleCap = def.SampleCap
	}
	if opts.LowerPercentile == 0 && opts.UpperPercentile == 0 {
		opts.LowerPercentile, opts.UpperPercentile = def.LowerPercentile, def.UpperPercentile
	}
	if opts.WidenedLower == 0 && opts.WidenedUpper == 0 {
		opts.WidenedLower, opts.WidenedUpper = def.WidenedLower, def.WidenedUpper
	}
	if opts.MedianFactor <= 0 {
		opts.MedianFactor = def.MedianFactor
	}
	if opts.MinVoxels <= 0 {
		opts.MinVoxels = def.MinVoxels
	}
	if opts.FallbackLower == 0 && opts.FallbackUpper == 0 {
		opts.FallbackLower, opts.FallbackUpper = def.FallbackLower, def.FallbackUpper
	}
	return &Selector{opts: opts, log: logger.OrNull(opts.Logger)}
}

// ParseBound coerces an optional numeric string. Empty, malformed and
// non-finite values are reported as absent.
func ParseBound(raw *string) (float64, bool) {
	if raw == nil {
		return 0, false
	}
	s := strings.TrimSpace(*raw)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Select resolves the window for vol. Supplied bounds are clamped to the
// volume's range; missing ones are auto-detected from sampled foreground
// voxels. The ladder is deterministic for a given volume and inputs.
func (s *Selector) Select(vol *models.Volume, lower, upper *string) Result {
	lo, hasLo := ParseBound(lower)
	hi, hasHi := ParseBound(upper)
	if lower != nil && strings.TrimSpace(*lower) != "" && !hasLo {
		s.log.Infof("Ignoring invalid lower threshold %q, auto-detecting", *lower)
	}
	if upper != nil && strings.TrimSpace(*upper) != "" && !hasHi {
		s.log.Infof("Ignoring invalid upper threshold %q, auto-detecting", *upper)
	}

	vmin, vmax := vol.MinMax()
	sample := Sample(vol, s.opts.SampleCap)

	var res Result
	try := func(stage Stage, pair models.ThresholdPair) bool {
		count := Count(vol, pair)
		res.Attempts = append(res.Attempts, Attempt{Stage: stage, Pair: pair, MaskCount: count})
		s.log.Infof("Threshold %s [%.2f, %.2f] selects %d voxels", stage, pair.Lower, pair.Upper, count)
		return count >= s.opts.MinVoxels
	}

	first := StagePercentile
	var pair models.ThresholdPair
	if hasLo || hasHi {
		first = StageManual
		auto := s.percentiles(sample, s.opts.LowerPercentile, s.opts.UpperPercentile)
		if hasLo {
			auto.Lower = clamp(lo, vmin, vmax)
		}
		if hasHi {
			auto.Upper = clamp(hi, vmin, vmax)
		}
		pair = auto
		if pair.Lower > pair.Upper {
			s.log.Infof("Lower threshold above upper, swapping")
			pair.Lower, pair.Upper = pair.Upper, pair.Lower
		}
	} else {
		pair = s.percentiles(sample, s.opts.LowerPercentile, s.opts.UpperPercentile)
	}

	if !try(first, pair) {
		s.log.Infof("Too few voxels (< %d), widening to %.0f/%.0f percentiles", s.opts.MinVoxels, s.opts.WidenedLower, s.opts.WidenedUpper)
		if !try(StageWidened, s.percentiles(sample, s.opts.WidenedLower, s.opts.WidenedUpper)) {
			if len(sample) > 0 {
				m := stat.Quantile(0.5, stat.Empirical, sample, nil)
				// strictly greater than factor x median
				low := math.Nextafter(s.opts.MedianFactor*m, math.Inf(1))
				s.log.Infof("Still too few voxels, falling back to > %.2f x median (%.2f)", s.opts.MedianFactor, m)
				try(StageMedian, models.ThresholdPair{Lower: low, Upper: math.Max(vmax, low)})
			}
		}
	}

	last := res.Attempts[len(res.Attempts)-1]
	if last.MaskCount >= s.opts.MinVoxels {
		res.Pair, res.Stage, res.MaskCount = last.Pair, last.Stage, last.MaskCount
		return res
	}

	res.Exhausted = true
	best := res.Attempts[0]
	for _, a := range res.Attempts[1:] {
		if a.MaskCount > best.MaskCount {
			best = a
		}
	}
	res.Pair, res.Stage, res.MaskCount = best.Pair, best.Stage, best.MaskCount
	s.log.Infof("Threshold ladder exhausted, keeping %s window with %d voxels", best.Stage, best.MaskCount)
	return res
}

func (s *Selector) percentiles(sample []float64, lo, hi float64) models.ThresholdPair {
	if len(sample) == 0 {
		return models.ThresholdPair{Lower: s.opts.FallbackLower, Upper: s.opts.FallbackUpper}
	}
	return models.ThresholdPair{
		Lower: stat.Quantile(lo/100, stat.LinInterp, sample, nil),
		Upper: stat.Quantile(hi/100, stat.LinInterp, sample, nil),
	}
}

// Sample returns a sorted, evenly strided sample of at most limit foreground
// (strictly positive) voxels
func Sample(vol *models.Volume, limit int) []float64 {
	n := 0
	for _, v := range vol.Data {
		if v > 0 {
			n++
		}
	}
	if n == 0 {
		return nil
	}

	stride := 1
	if limit > 0 && n > limit {
		stride = (n + limit - 1) / limit
	}

	out := make([]float64, 0, (n+stride-1)/stride)
	seen := 0
	for _, v := range vol.Data {
		if v <= 0 {
			continue
		}
		if seen%stride == 0 {
			out = append(out, v)
		}
		seen++
	}
	sort.Float64s(out)
	return out
}

// Count returns the number of voxels inside the window
func Count(vol *models.Volume, pair models.ThresholdPair) int {
	n := 0
	for _, v := range vol.Data {
		if pair.Contains(v) {
			n++
		}
	}
	return n
}

// Apply builds the binary mask lower <= v <= upper
func Apply(vol *models.Volume, pair models.ThresholdPair) *models.Mask {
	m := models.NewMask(vol.Depth, vol.Rows, vol.Cols)
	for i, v := range vol.Data {
		m.Data[i] = pair.Contains(v)
	}
	return m
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
