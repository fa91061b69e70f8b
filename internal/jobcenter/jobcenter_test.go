package jobcenter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabiand/igor/internal/hooks"
	"github.com/fabiand/igor/internal/inventory"
	"github.com/fabiand/igor/internal/job"
	"github.com/fabiand/igor/internal/testdef"
)

type fakeHost struct {
	name    string
	started bool
	purged  bool
}

func (h *fakeHost) Name() string       { return h.name }
func (h *fakeHost) Prepare() error     { return nil }
func (h *fakeHost) Start() error       { h.started = true; return nil }
func (h *fakeHost) MACAddress() string { return "00:11:22:33:44:55" }
func (h *fakeHost) Purge() error       { h.purged = true; return nil }

type fakeProfile struct{ name string }

func (p *fakeProfile) Name() string                                  { return p.name }
func (p *fakeProfile) AssignTo(inventory.Host, string) error         { return nil }
func (p *fakeProfile) RevokeFrom(inventory.Host) error                { return nil }
func (p *fakeProfile) EnablePXE(inventory.Host, bool) error           { return nil }
func (p *fakeProfile) Delete() error                                  { return nil }
func (p *fakeProfile) Kargs(set *string) (string, error)              { return "", nil }

func oneStepSuite() *testdef.Testsuite {
	return &testdef.Testsuite{
		Testsets: []testdef.Testset{{
			Testcases: []testdef.Testcase{{Name: "a", Filename: "a.sh", Timeout: 5 * time.Second}},
		}},
	}
}

// memoryOrigin is a minimal in-memory inventory.Origin for tests --
// never a production driver, per spec.md's out-of-scope concrete
// origins (libvirt/Cobbler/filesystem readers).
type memoryOrigin struct {
	name  string
	items map[string]any
}

func (o *memoryOrigin) Name() string              { return o.name }
func (o *memoryOrigin) Items() map[string]any      { return o.items }
func (o *memoryOrigin) Lookup(name string) (any, bool) {
	item, ok := o.items[name]
	return item, ok
}

func newCenterWithInventory(t *testing.T, inv *inventory.Inventory) *Center {
	t.Helper()
	hr := hooks.New("")
	c := New(Config{TickInterval: 15 * time.Millisecond, SessionRoot: t.TempDir()}, inv, hr)
	t.Cleanup(func() { c.Stop() })
	return c
}

func newCenter(t *testing.T) *Center {
	t.Helper()
	return newCenterWithInventory(t, inventory.New())
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

func TestSubmitThenStartJobRunsToPassed(t *testing.T) {
	c := newCenter(t)

	spec := testdef.JobSpec{
		Testsuite: oneStepSuite(),
		Profile:   &fakeProfile{name: "p1"},
		Host:      &fakeHost{name: "h1"},
	}
	cookieStr, j, err := c.Submit(spec, "")
	require.NoError(t, err)
	require.NotEmpty(t, cookieStr)

	require.NoError(t, c.StartJob(cookieStr))

	waitUntil(t, time.Second, func() bool { return j.State().Is(job.StateRunning) })

	_, err = c.FinishTestStep(cookieStr, 0, true, "", nil)
	require.NoError(t, err)

	waitUntil(t, time.Second, func() bool { return j.EndedAt() != nil })
	assert.True(t, j.State().Is(job.StatePassed))
}

func TestHostExclusivitySerializesTwoJobsOnSameHost(t *testing.T) {
	c := newCenter(t)
	host := &fakeHost{name: "shared"}

	spec1 := testdef.JobSpec{Testsuite: oneStepSuite(), Profile: &fakeProfile{name: "p1"}, Host: host}
	spec2 := testdef.JobSpec{Testsuite: oneStepSuite(), Profile: &fakeProfile{name: "p2"}, Host: host}

	cookie1, j1, err := c.Submit(spec1, "")
	require.NoError(t, err)
	cookie2, j2, err := c.Submit(spec2, "")
	require.NoError(t, err)

	require.NoError(t, c.StartJob(cookie1))
	require.NoError(t, c.StartJob(cookie2))

	waitUntil(t, time.Second, func() bool { return j1.State().Is(job.StateRunning) })
	assert.True(t, j2.State().Is(job.StateOpen), "second job must stay queued while host is in use")

	_, err = c.FinishTestStep(cookie1, 0, true, "", nil)
	require.NoError(t, err)

	waitUntil(t, time.Second, func() bool { return j2.State().Is(job.StateRunning) })
}

func TestSubmitDuplicatePreferredCookieRejected(t *testing.T) {
	c := newCenter(t)
	spec := testdef.JobSpec{Testsuite: oneStepSuite(), Profile: &fakeProfile{name: "p1"}, Host: &fakeHost{name: "h1"}}

	cookieStr, _, err := c.Submit(spec, "mycookie")
	require.NoError(t, err)
	require.Equal(t, "mycookie", cookieStr)

	_, _, err = c.Submit(spec, "mycookie")
	assert.ErrorIs(t, err, job.ErrPrecondition)
}

func TestAbortJobUnknownCookie(t *testing.T) {
	c := newCenter(t)
	err := c.AbortJob("does-not-exist")
	assert.ErrorIs(t, err, job.ErrNotFound)
}

func TestSubmitPlanRejectsDuplicateName(t *testing.T) {
	inv := inventory.New()
	inv.Register(inventory.CategoryTestsuites, &memoryOrigin{name: "mem", items: map[string]any{
		"suite": oneStepSuite(),
	}})
	inv.Register(inventory.CategoryProfiles, &memoryOrigin{name: "mem", items: map[string]any{
		"p1": &fakeProfile{name: "p1"},
	}})
	inv.Register(inventory.CategoryHosts, &memoryOrigin{name: "mem", items: map[string]any{
		"h1": &fakeHost{name: "h1"},
	}})

	c := newCenterWithInventory(t, inv)
	plan := testdef.Testplan{
		Name: "p",
		JobLayouts: []testdef.JobLayout{{
			Testsuite: testdef.FieldRef{Name: "suite"},
			Profile:   testdef.FieldRef{Name: "p1"},
			Host:      testdef.FieldRef{Name: "h1"},
		}},
	}

	_, err := c.SubmitPlan(plan)
	require.NoError(t, err)

	waitUntil(t, time.Second, func() bool {
		snap, err := c.StatusPlan("p")
		return err == nil && len(snap.Cookies) == 1
	})

	_, err = c.SubmitPlan(plan)
	assert.ErrorIs(t, err, ErrPlanAlreadyRunning)
}
