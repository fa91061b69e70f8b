package reports

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabiand/igor/internal/job"
	"github.com/fabiand/igor/internal/testdef"
)

func sampleSnapshot() job.Snapshot {
	return job.Snapshot{
		Cookie:    "cookie1",
		Testsuite: "suite",
		Host:      "h1",
		Profile:   "p1",
		Result:    "FAIL",
		Runtime:   2500 * time.Millisecond,
		Results: []job.StepResult{
			{Testcase: testdef.Testcase{Name: "a"}, IsPassed: true, Runtime: time.Second},
			{Testcase: testdef.Testcase{Name: "b"}, IsPassed: false, Note: "boom", Runtime: 1500 * time.Millisecond},
		},
	}
}

func TestRSTIncludesEachStep(t *testing.T) {
	out, err := RST(sampleSnapshot())
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, "suite -- cookie1")
	assert.Contains(t, s, "0. a -- PASS")
	assert.Contains(t, s, "1. b -- FAIL (boom)")
}

func TestJUnitCountsFailuresAndEscapes(t *testing.T) {
	snap := sampleSnapshot()
	snap.Results[1].Note = `<bad & "quoted">`
	out, err := JUnit(snap)
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, `failures="1"`)
	assert.Contains(t, s, `tests="2"`)
	assert.Contains(t, s, "&lt;bad &amp; &quot;quoted&quot;&gt;")
	assert.NotContains(t, s, `<bad &`)
}
