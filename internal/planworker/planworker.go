// Package planworker runs a Testplan to completion: submit, start and
// wait for each of its jobs in strict sequence, cancellable mid-flight.
package planworker

import (
	"context"
	"sync"

	"gopkg.in/tomb.v2"

	"github.com/fabiand/igor/internal/job"
	"github.com/fabiand/igor/internal/testdef"
	"github.com/fabiand/igor/pkg/log"
)

// Center is the subset of JobCenter a PlanWorker needs. Kept as a
// locally-defined interface (rather than importing internal/jobcenter)
// so the two packages don't form an import cycle: jobcenter imports
// planworker to hold running plans, not the other way around.
type Center interface {
	Submit(spec testdef.JobSpec, preferred string) (string, *job.Job, error)
	StartJob(cookie string) error
}

// Snapshot is the plan-level status returned by StatusPlan.
type Snapshot struct {
	Name      string   `json:"name" yaml:"name"`
	Cookies   []string `json:"cookies" yaml:"cookies"`
	Running   bool     `json:"running" yaml:"running"`
	Passed    bool     `json:"passed" yaml:"passed"`
	Aborted   bool     `json:"aborted" yaml:"aborted"`
	FailedAt  int      `json:"failed_at,omitempty" yaml:"failed_at,omitempty"`
	Error     string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// Worker drives one running Testplan.
type Worker struct {
	Name string

	center Center
	plan   testdef.Testplan

	mu       sync.Mutex
	snapshot Snapshot
	current  *job.Job

	t *tomb.Tomb
}

// New starts a Worker for plan against center, resolving job specs from
// specs (produced by the caller via plan.JobSpecs bound to an
// inventory). The worker begins running immediately in the background.
func New(name string, plan testdef.Testplan, center Center, specs func(ctx context.Context, planID string) <-chan testdef.JobSpecOrError) *Worker {
	w := &Worker{
		Name:   name,
		center: center,
		plan:   plan,
		snapshot: Snapshot{
			Name:    name,
			Running: true,
		},
	}
	w.t = &tomb.Tomb{}
	w.t.Go(func() error {
		w.run(specs)
		return nil
	})
	return w
}

func (w *Worker) run(specs func(ctx context.Context, planID string) <-chan testdef.JobSpecOrError) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-w.t.Dying():
			cancel()
		case <-ctx.Done():
		}
	}()

	allPassed := true

	for item := range specs(ctx, w.Name) {
		if item.Err != nil {
			w.finish(Snapshot{Name: w.Name, Error: item.Err.Error(), Passed: false})
			return
		}

		select {
		case <-w.t.Dying():
			w.finish(Snapshot{Name: w.Name, Aborted: true, Passed: false, Cookies: w.cookies()})
			return
		default:
		}

		cookie, j, err := w.center.Submit(item.Spec, "")
		if err != nil {
			w.finish(Snapshot{Name: w.Name, Error: err.Error(), Passed: false, Cookies: w.cookies()})
			return
		}

		w.mu.Lock()
		w.snapshot.Cookies = append(w.snapshot.Cookies, cookie)
		w.current = j
		w.mu.Unlock()

		if err := w.center.StartJob(cookie); err != nil {
			w.finish(Snapshot{Name: w.Name, Error: err.Error(), Passed: false, Cookies: w.cookies()})
			return
		}

		done := w.t.Dying()
		j.Wait(done)

		select {
		case <-done:
			if err := j.Abort(); err != nil {
				log.Warnf("planworker %s: abort job %s on stop: %v", w.Name, cookie, err)
			}
			w.finish(Snapshot{Name: w.Name, Aborted: true, Passed: false, Cookies: w.cookies()})
			return
		default:
		}

		if !j.State().Is(job.StatePassed) {
			allPassed = false
		}
	}

	w.finish(Snapshot{Name: w.Name, Passed: allPassed, Cookies: w.cookies()})
}

func (w *Worker) cookies() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.snapshot.Cookies))
	copy(out, w.snapshot.Cookies)
	return out
}

func (w *Worker) finish(final Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	final.Running = false
	if len(final.Cookies) == 0 {
		final.Cookies = w.snapshot.Cookies
	}
	w.snapshot = final
}

// Snapshot returns the current plan status.
func (w *Worker) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshot
}

// Stop requests the worker to abort its current job and stop submitting
// further jobs. It does not block for completion.
func (w *Worker) Stop() {
	w.mu.Lock()
	cur := w.current
	w.mu.Unlock()
	w.t.Kill(nil)
	if cur != nil {
		if err := cur.Abort(); err != nil {
			log.Warnf("planworker %s: abort current job on Stop: %v", w.Name, err)
		}
	}
}

// Done returns a channel closed once the worker has finished.
func (w *Worker) Done() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		w.t.Wait()
		close(ch)
	}()
	return ch
}
