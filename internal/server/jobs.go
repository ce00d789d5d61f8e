package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/GriffinCanCode/pixmesh/internal/domain/pipeline"
	"github.com/GriffinCanCode/pixmesh/internal/imaging"
)

// IsPattern reports whether input names a glob rather than a single file.
func IsPattern(input string) bool {
	return strings.ContainsAny(input, "*?[{")
}

// ExpandJobs turns the command-line input and output into jobs. A plain
// input is a single job. A glob input writes each match under the output
// directory, keeping its path relative to the glob's fixed prefix; the
// directories are created here.
func ExpandJobs(input, output string) ([]pipeline.Job, error) {
	if !IsPattern(input) {
		return []pipeline.Job{pipeline.NewJob(input, output)}, nil
	}

	pattern := filepath.ToSlash(input)
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: bad pattern %q", imaging.ErrIO, input)
	}
	base, _ := doublestar.SplitPattern(pattern)

	matches, err := doublestar.FilepathGlob(input, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("%w: glob %q: %w", imaging.ErrIO, input, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no files match %q", imaging.ErrIO, input)
	}

	jobs := make([]pipeline.Job, 0, len(matches))
	for _, match := range matches {
		rel, err := filepath.Rel(filepath.FromSlash(base), match)
		if err != nil {
			rel = filepath.Base(match)
		}
		out := filepath.Join(output, rel)
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return nil, fmt.Errorf("%w: %w", imaging.ErrIO, err)
		}
		jobs = append(jobs, pipeline.NewJob(match, out))
	}
	return jobs, nil
}
