package pipeline

import (
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"gonum.org/v1/gonum/stat"

	"github.com/GriffinCanCode/pixmesh/internal/imaging"
)

// Report summarises a session on the coordinator.
type Report struct {
	Kernel        string      `json:"kernel"`
	Workers       int         `json:"workers"`
	GeneratedAt   time.Time   `json:"generated_at"`
	Succeeded     int         `json:"succeeded"`
	Failed        int         `json:"failed"`
	MeanElapsedMs float64     `json:"mean_elapsed_ms"`
	Jobs          []JobReport `json:"jobs"`
}

// JobReport is one run's entry in a Report.
type JobReport struct {
	RunID         string             `json:"run_id"`
	Input         string             `json:"input"`
	Output        string             `json:"output"`
	State         string             `json:"state"`
	Error         string             `json:"error,omitempty"`
	Width         int                `json:"width"`
	Height        int                `json:"height"`
	MeanIntensity float64            `json:"mean_intensity"`
	ElapsedMs     float64            `json:"elapsed_ms"`
	PhasesMs      map[string]float64 `json:"phases_ms"`
}

// NewReport builds a report from coordinator results.
func NewReport(kernel string, workers int, results []Result) *Report {
	r := &Report{
		Kernel:      kernel,
		Workers:     workers,
		GeneratedAt: time.Now().UTC(),
		Jobs:        make([]JobReport, 0, len(results)),
	}

	elapsed := make([]float64, 0, len(results))
	for _, res := range results {
		job := JobReport{
			RunID:         res.RunID.String(),
			Input:         res.Input,
			Output:        res.Output,
			State:         res.State.String(),
			Width:         res.Dims.Width,
			Height:        res.Dims.Height,
			MeanIntensity: res.MeanIntensity,
			ElapsedMs:     millis(res.Elapsed),
			PhasesMs:      make(map[string]float64, len(res.Phases)),
		}
		if res.Err != nil {
			job.Error = res.Err.Error()
		}
		for _, p := range res.Phases {
			job.PhasesMs[p.Name] += millis(p.Duration)
		}

		if res.State == Persisted {
			r.Succeeded++
		} else {
			r.Failed++
		}
		elapsed = append(elapsed, job.ElapsedMs)
		r.Jobs = append(r.Jobs, job)
	}
	if len(elapsed) > 0 {
		r.MeanElapsedMs = stat.Mean(elapsed, nil)
	}
	return r
}

// Write stores the report as indented JSON.
func (r *Report) Write(path string) error {
	data, err := sonic.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %w", imaging.ErrIO, err)
	}
	return nil
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
