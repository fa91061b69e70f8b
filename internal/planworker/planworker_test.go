package planworker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabiand/igor/internal/hooks"
	"github.com/fabiand/igor/internal/inventory"
	"github.com/fabiand/igor/internal/job"
	"github.com/fabiand/igor/internal/session"
	"github.com/fabiand/igor/internal/testdef"
)

type fakeHost struct{ name string }

func (h *fakeHost) Name() string       { return h.name }
func (h *fakeHost) Prepare() error     { return nil }
func (h *fakeHost) Start() error       { return nil }
func (h *fakeHost) MACAddress() string { return "00:11:22:33:44:55" }
func (h *fakeHost) Purge() error       { return nil }

type fakeProfile struct{ name string }

func (p *fakeProfile) Name() string                          { return p.name }
func (p *fakeProfile) AssignTo(inventory.Host, string) error { return nil }
func (p *fakeProfile) RevokeFrom(inventory.Host) error       { return nil }
func (p *fakeProfile) EnablePXE(inventory.Host, bool) error  { return nil }
func (p *fakeProfile) Delete() error                         { return nil }
func (p *fakeProfile) Kargs(set *string) (string, error)     { return "", nil }

func oneStepSuite() *testdef.Testsuite {
	return &testdef.Testsuite{
		Name: "suite",
		Testsets: []testdef.Testset{{
			Testcases: []testdef.Testcase{{Name: "a", Filename: "a.sh", Timeout: 5 * time.Second}},
		}},
	}
}

// fakeCenter submits real job.Job instances (so state transitions behave
// exactly as planworker depends on) but skips jobcenter's host-pool
// FIFO entirely -- Setup/Start run synchronously on StartJob, which is
// sufficient for exercising the Worker's sequencing, not the Orchestrator.
type fakeCenter struct {
	t    *testing.T
	jobs map[string]*job.Job

	// autoFinish drives the single testcase to success right after Start,
	// so the run loop advances past Wait without an external driver.
	autoFinish bool
}

func (c *fakeCenter) Submit(spec testdef.JobSpec, preferred string) (string, *job.Job, error) {
	sess, err := session.New(c.t.TempDir(), "")
	require.NoError(c.t, err)
	cookie := spec.Testsuite.Name + "-" + spec.Host.Name()
	j := job.New(cookie, spec.Testsuite, spec.Profile, spec.Host, sess, spec.AdditionalKargs, job.WithHookRunner(hooks.New("")))
	c.jobs[cookie] = j
	return cookie, j, nil
}

func (c *fakeCenter) StartJob(cookie string) error {
	j := c.jobs[cookie]
	if err := j.Setup(nil); err != nil {
		return err
	}
	if err := j.Start(); err != nil {
		return err
	}
	if c.autoFinish {
		go func() {
			time.Sleep(5 * time.Millisecond)
			_, _ = j.FinishStep(0, true, "", false, false, nil)
		}()
	}
	return nil
}

func specsFrom(layouts ...testdef.JobSpec) func(ctx context.Context, planID string) <-chan testdef.JobSpecOrError {
	return func(ctx context.Context, planID string) <-chan testdef.JobSpecOrError {
		ch := make(chan testdef.JobSpecOrError)
		go func() {
			defer close(ch)
			for _, spec := range layouts {
				select {
				case ch <- testdef.JobSpecOrError{Spec: spec}:
				case <-ctx.Done():
					return
				}
			}
		}()
		return ch
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.FailNow(t, "condition not met before timeout")
}

func TestWorkerRunsEveryLayoutToPassed(t *testing.T) {
	center := &fakeCenter{t: t, jobs: map[string]*job.Job{}, autoFinish: true}
	specs := []testdef.JobSpec{
		{Testsuite: oneStepSuite(), Profile: &fakeProfile{name: "p1"}, Host: &fakeHost{name: "h1"}},
		{Testsuite: oneStepSuite(), Profile: &fakeProfile{name: "p2"}, Host: &fakeHost{name: "h2"}},
	}

	w := New("plan1", testdef.Testplan{Name: "plan1"}, center, specsFrom(specs...))

	waitUntil(t, time.Second, func() bool { return !w.Snapshot().Running })

	snap := w.Snapshot()
	assert.True(t, snap.Passed)
	assert.Len(t, snap.Cookies, 2)
}

func TestWorkerStopAbortsInFlightJob(t *testing.T) {
	center := &fakeCenter{t: t, jobs: map[string]*job.Job{}, autoFinish: false}
	specs := []testdef.JobSpec{
		{Testsuite: oneStepSuite(), Profile: &fakeProfile{name: "p1"}, Host: &fakeHost{name: "h1"}},
	}

	w := New("plan2", testdef.Testplan{Name: "plan2"}, center, specsFrom(specs...))

	waitUntil(t, time.Second, func() bool { return len(w.Snapshot().Cookies) == 1 })
	w.Stop()

	waitUntil(t, time.Second, func() bool { return !w.Snapshot().Running })
	snap := w.Snapshot()
	assert.True(t, snap.Aborted)
	assert.False(t, snap.Passed)
}

func TestWorkerPropagatesSpecError(t *testing.T) {
	center := &fakeCenter{t: t, jobs: map[string]*job.Job{}}
	failing := func(ctx context.Context, planID string) <-chan testdef.JobSpecOrError {
		ch := make(chan testdef.JobSpecOrError, 1)
		ch <- testdef.JobSpecOrError{Err: assert.AnError}
		close(ch)
		return ch
	}

	w := New("plan3", testdef.Testplan{Name: "plan3"}, center, failing)

	waitUntil(t, time.Second, func() bool { return !w.Snapshot().Running })
	snap := w.Snapshot()
	assert.False(t, snap.Passed)
	assert.Equal(t, assert.AnError.Error(), snap.Error)
}
