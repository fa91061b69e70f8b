package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabiand/igor/internal/inventory"
	"github.com/fabiand/igor/internal/session"
	"github.com/fabiand/igor/internal/testdef"
)

type fakeHost struct {
	name      string
	prepared  bool
	started   bool
	purged    bool
	prepareErr error
}

func (h *fakeHost) Name() string       { return h.name }
func (h *fakeHost) Prepare() error     { h.prepared = true; return h.prepareErr }
func (h *fakeHost) Start() error       { h.started = true; return nil }
func (h *fakeHost) MACAddress() string { return "00:11:22:33:44:55" }
func (h *fakeHost) Purge() error       { h.purged = true; return nil }

type fakeProfile struct {
	name     string
	assigned bool
	revoked  bool
	kargs    string
}

func (p *fakeProfile) Name() string { return p.name }
func (p *fakeProfile) AssignTo(inventory.Host, string) error {
	p.assigned = true
	return nil
}
func (p *fakeProfile) RevokeFrom(inventory.Host) error { p.revoked = true; return nil }
func (p *fakeProfile) EnablePXE(inventory.Host, bool) error { return nil }
func (p *fakeProfile) Delete() error                        { return nil }
func (p *fakeProfile) Kargs(set *string) (string, error) {
	if set != nil {
		p.kargs = *set
	}
	return p.kargs, nil
}

func twoStepSuite() *testdef.Testsuite {
	return &testdef.Testsuite{
		Name: "suite",
		Testsets: []testdef.Testset{{
			Name: "set",
			Testcases: []testdef.Testcase{
				{Name: "a", Filename: "a.sh", Timeout: 5 * time.Second},
				{Name: "b", Filename: "b.sh", Timeout: 5 * time.Second},
			},
		}},
	}
}

func newTestJob(t *testing.T, suite *testdef.Testsuite) (*Job, *fakeHost, *fakeProfile) {
	t.Helper()
	sess, err := session.New(t.TempDir(), "cookie1")
	require.NoError(t, err)
	host := &fakeHost{name: "h1"}
	profile := &fakeProfile{name: "p1"}
	j := New("cookie1", suite, profile, host, sess, "", WithWatchdogInterval(20*time.Millisecond))
	return j, host, profile
}

func TestHappyPathTwoStepsBothPass(t *testing.T) {
	j, _, _ := newTestJob(t, twoStepSuite())

	require.NoError(t, j.Setup(nil))
	require.NoError(t, j.Start())

	_, err := j.FinishStep(0, true, "", false, false, nil)
	require.NoError(t, err)
	_, err = j.FinishStep(1, true, "", false, false, nil)
	require.NoError(t, err)

	assert.True(t, j.State().Is(StatePassed))
	results := j.Results()
	require.Len(t, results, 2)
	assert.True(t, results[0].IsPassed)
	assert.True(t, results[1].IsPassed)
}

func TestExpectedFailurePasses(t *testing.T) {
	suite := &testdef.Testsuite{
		Testsets: []testdef.Testset{{
			Testcases: []testdef.Testcase{{Name: "c", Filename: "c.sh", ExpectFailure: true, Timeout: time.Second}},
		}},
	}
	j, _, _ := newTestJob(t, suite)
	require.NoError(t, j.Setup(nil))
	require.NoError(t, j.Start())

	res, err := j.FinishStep(0, false, "", false, false, nil)
	require.NoError(t, err)
	assert.False(t, res.IsSuccess)
	assert.True(t, res.IsPassed)
	assert.True(t, j.State().Is(StatePassed))
}

func TestTimeoutDuringStepTwo(t *testing.T) {
	suite := &testdef.Testsuite{
		Testsets: []testdef.Testset{{
			Testcases: []testdef.Testcase{
				{Name: "x", Filename: "x.sh", Timeout: 100 * time.Millisecond},
				{Name: "y", Filename: "y.sh", Timeout: 100 * time.Millisecond},
			},
		}},
	}
	j, _, _ := newTestJob(t, suite)
	require.NoError(t, j.Setup(nil))
	require.NoError(t, j.Start())

	_, err := j.FinishStep(0, true, "", false, false, nil)
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if j.State().Is(StateTimedout) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.True(t, j.State().Is(StateTimedout), "job should have timed out")

	_, err = j.FinishStep(1, true, "", false, false, nil)
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestAbortWhileRunning(t *testing.T) {
	j, host, profile := newTestJob(t, &testdef.Testsuite{
		Testsets: []testdef.Testset{{
			Testcases: []testdef.Testcase{
				{Name: "a", Filename: "a.sh", Timeout: time.Second},
				{Name: "b", Filename: "b.sh", Timeout: time.Second},
				{Name: "c", Filename: "c.sh", Timeout: time.Second},
			},
		}},
	})
	require.NoError(t, j.Setup(nil))
	require.NoError(t, j.Start())

	require.NoError(t, j.Abort())

	assert.True(t, j.State().Is(StateAborted))
	results := j.Results()
	require.Len(t, results, 1)
	assert.True(t, results[0].IsAbort)
	assert.Equal(t, "aborted", results[0].Note)

	require.NoError(t, j.End())
	assert.True(t, host.purged)
	assert.True(t, profile.revoked)
}

func TestFinishStepWrongStepNumberRejected(t *testing.T) {
	j, _, _ := newTestJob(t, twoStepSuite())
	require.NoError(t, j.Setup(nil))
	require.NoError(t, j.Start())

	_, err := j.FinishStep(1, true, "", false, false, nil)
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestEmptySuiteAllowedTimeIsZero(t *testing.T) {
	j, _, _ := newTestJob(t, &testdef.Testsuite{})
	assert.Equal(t, time.Duration(0), j.AllowedTimeUpToCurrentStep())
}

func TestCleanRequiresEnd(t *testing.T) {
	j, _, _ := newTestJob(t, twoStepSuite())
	err := j.Clean()
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestAnnotateAppendsYAMLList(t *testing.T) {
	j, _, _ := newTestJob(t, twoStepSuite())
	require.NoError(t, j.Setup(nil))
	require.NoError(t, j.Start())

	require.NoError(t, j.Annotate("first note", "current", true))
	require.NoError(t, j.Annotate("second note", "current", true))

	res, err := j.FinishStep(0, true, "", false, false, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"first note", "second note"}, res.Annotations)
}
