// Package series discovers, parses and orders the DICOM files of a single
// image series.
//
// Files that cannot be parsed are skipped with a warning. The loader only
// fails when nothing usable remains, reporting an *EmptySeriesError.
package series

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"aortec/internal/logger"
	"aortec/internal/models"
)

// EmptySeriesError is returned when a directory holds no readable slices.
type EmptySeriesError struct {
	Dir        string
	Candidates int
}

func (e *EmptySeriesError) Error() string {
	return fmt.Sprintf("no valid DICOM slices found in %s (%d candidate files)", e.Dir, e.Candidates)
}

// Strategy records how the pixel data of a series was obtained.
type Strategy string

const (
	StrategyNative       Strategy = "native"
	StrategyEncapsulated Strategy = "encapsulated"
	StrategyMixed        Strategy = "mixed"
)

// Options controls file discovery and parsing
type Options struct {
	// Extensions are accepted file suffixes, compared case-insensitively
	Extensions []string

	// AcceptExtensionless admits files with no suffix at all
	AcceptExtensionless bool

	// Workers is the number of files parsed concurrently
	Workers int

	Logger logger.ILogger
}

// DefaultOptions returns the options used when none are configured
func DefaultOptions() Options {
	return Options{
		Extensions:          []string{".dcm", ".dicom", ".ima"},
		AcceptExtensionless: true,
		Workers:             runtime.NumCPU(),
	}
}

// Series is the ordered result of loading a directory
type Series struct {
	Dir      string
	Slices   []models.Slice
	Key      KeyKind
	Strategy Strategy

	// Skipped lists files that were candidates but failed to parse
	Skipped []string
}

// Loader reads series from disk
type Loader struct {
	opts Options
	log  logger.ILogger
}

// NewLoader creates a loader. Zero-valued options fall back to DefaultOptions.
func NewLoader(opts Options) *Loader {
	def := DefaultOptions()
	if len(opts.Extensions) == 0 {
		opts.Extensions = def.Extensions
		opts.AcceptExtensionless = def.AcceptExtensionless
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	return &Loader{opts: opts, log: logger.OrNull(opts.Logger)}
}

// IsCandidate reports whether a file name looks like a DICOM slice
func (l *Loader) IsCandidate(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.EqualFold(base, "DICOMDIR") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	if ext == "" {
		return l.opts.AcceptExtensionless
	}
	for _, e := range l.opts.Extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// Candidates lists the candidate files directly inside dir, sorted by name
func (l *Loader) Candidates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "error reading series directory")
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !l.IsCandidate(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

type parseResult struct {
	slice *models.Slice
	err   error
}

// Load parses every candidate file in dir and returns the slices ordered by
// the best ordering key shared by all of them
func (l *Loader) Load(dir string) (*Series, error) {
	files, err := l.Candidates(dir)
	if err != nil {
		return nil, err
	}
	l.log.Infof("Found %d candidate files in %s", len(files), dir)

	results := make([]parseResult, len(files))
	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := l.opts.Workers
	if workers > len(files) {
		workers = len(files)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				s, err := ReadFile(files[i])
				results[i] = parseResult{slice: s, err: err}
			}
		}()
	}
	for i := range files {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	out := &Series{Dir: dir}
	native, encapsulated := 0, 0
	for i, res := range results {
		if res.err != nil {
			l.log.Infof("Skipping %s: %v", filepath.Base(files[i]), res.err)
			out.Skipped = append(out.Skipped, files[i])
			continue
		}
		if res.slice.Encapsulated {
			encapsulated++
		} else {
			native++
		}
		out.Slices = append(out.Slices, *res.slice)
	}

	if len(out.Slices) == 0 {
		return nil, &EmptySeriesError{Dir: dir, Candidates: len(files)}
	}

	switch {
	case encapsulated == 0:
		out.Strategy = StrategyNative
	case native == 0:
		out.Strategy = StrategyEncapsulated
	default:
		out.Strategy = StrategyMixed
	}

	out.Key = SortSlices(out.Slices)
	l.log.Infof("Loaded %d slices (%d skipped) using %s pixel data, ordered by %s",
		len(out.Slices), len(out.Skipped), out.Strategy, out.Key)

	return out, nil
}
