package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/pixmesh/internal/collective"
	"github.com/GriffinCanCode/pixmesh/internal/domain/filter"
	"github.com/GriffinCanCode/pixmesh/internal/domain/partition"
	"github.com/GriffinCanCode/pixmesh/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pixmesh/internal/shared/id"
)

// Job is one input/output pair of a batch.
type Job struct {
	ID     id.JobID
	Input  string
	Output string
}

// NewJob creates a job with a fresh ID.
func NewJob(input, output string) Job {
	return Job{ID: id.NewJobID(), Input: input, Output: output}
}

// Status is a point-in-time view of a session for the status endpoint.
type Status struct {
	Rank      int    `json:"rank"`
	Workers   int    `json:"workers"`
	Kernel    string `json:"kernel"`
	Job       string `json:"job,omitempty"`
	State     string `json:"state"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
}

// Session runs a sequence of jobs over one group. Before each job the
// coordinator broadcasts whether another job follows, so workers never
// need to know the job list.
type Session struct {
	ch     collective.Channel
	orch   *Orchestrator
	logger *logging.Logger

	mu     sync.RWMutex
	status Status
}

// NewSession wires a session around an orchestrator built with opts. Any
// observer in opts still receives every transition.
func NewSession(ch collective.Channel, kernel filter.Kernel, opts Options) *Session {
	s := &Session{ch: ch}
	downstream := opts.Observer
	opts.Observer = func(t Transition) {
		s.mu.Lock()
		s.status.State = t.To.String()
		s.mu.Unlock()
		if downstream != nil {
			downstream(t)
		}
	}
	s.orch = New(ch, kernel, opts)
	s.logger = s.orch.logger
	s.status = Status{
		Rank:    ch.Rank(),
		Workers: ch.Size(),
		Kernel:  kernel.Name(),
		State:   Idle.String(),
	}
	return s
}

// Run executes jobs. jobs is only read on the coordinator; workers follow
// until the coordinator signals the end. A job rejected before data moved
// is recorded and the session moves on; any later failure leaves the
// group in an unknown position and ends the session with that error.
func (s *Session) Run(ctx context.Context, jobs []Job) ([]Result, error) {
	var results []Result
	for i := 0; ; i++ {
		next := int64(0)
		if s.ch.Rank() == partition.Coordinator && i < len(jobs) {
			next = 1
		}
		more, err := s.ch.Broadcast(ctx, next, partition.Coordinator)
		if err != nil {
			return results, fmt.Errorf("session continue flag: %w", err)
		}
		if more == 0 {
			return results, nil
		}

		var job Job
		if s.ch.Rank() == partition.Coordinator {
			job = jobs[i]
		}
		s.begin(job)

		res, err := s.orch.Run(ctx, job.Input, job.Output)
		results = append(results, res)
		s.finish(err)

		if err != nil && !errors.Is(err, ErrAborted) {
			return results, err
		}
		if err != nil {
			s.logger.Warn("Job rejected, continuing",
				zap.String("job_id", job.ID.String()),
				zap.String("input", job.Input),
				zap.Error(err))
		}
	}
}

// Status returns the session's current progress.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) begin(job Job) {
	s.mu.Lock()
	s.status.Job = job.ID.String()
	s.status.State = Idle.String()
	s.mu.Unlock()
}

func (s *Session) finish(err error) {
	s.mu.Lock()
	if err != nil {
		s.status.Failed++
	} else {
		s.status.Completed++
	}
	s.mu.Unlock()
}

// Failed counts results that did not reach Persisted.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.State != Persisted {
			n++
		}
	}
	return n
}
