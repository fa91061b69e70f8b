package job

import (
	"time"

	"github.com/fabiand/igor/pkg/log"
)

// Snapshot is the dict-equivalent rendering of a Job for JSON/XML/YAML
// responses, per spec.md §4.4.
type Snapshot struct {
	Cookie          string        `json:"cookie" xml:"cookie" yaml:"cookie"`
	Profile         string        `json:"profile" xml:"profile" yaml:"profile"`
	Host            string        `json:"host" xml:"host" yaml:"host"`
	Testsuite       string        `json:"testsuite" xml:"testsuite" yaml:"testsuite"`
	State           string        `json:"state" xml:"state" yaml:"state"`
	IsEndState      bool          `json:"is_endstate" xml:"is_endstate" yaml:"is_endstate"`
	CurrentStep     int           `json:"current_step" xml:"current_step" yaml:"current_step"`
	Results         []StepResult  `json:"results" xml:"results" yaml:"results"`
	Timeout         time.Duration `json:"timeout" xml:"timeout" yaml:"timeout"`
	Runtime         time.Duration `json:"runtime" xml:"runtime" yaml:"runtime"`
	CreatedAt       time.Time     `json:"created_at" xml:"created_at" yaml:"created_at"`
	Artifacts       []string      `json:"artifacts" xml:"artifacts" yaml:"artifacts"`
	AdditionalKargs string        `json:"additional_kargs" xml:"additional_kargs" yaml:"additional_kargs"`
	Result          string        `json:"result" xml:"result" yaml:"result"`
}

// Snapshot serializes the job's observable state. Artifact listing
// failures are logged, not propagated -- a transient fs error shouldn't
// hide the job's status.
func (j *Job) Snapshot() Snapshot {
	artifacts, err := j.ListArtifacts()
	if err != nil {
		log.Warnf("job %s: list artifacts for snapshot: %v", j.Cookie, err)
	}
	return Snapshot{
		Cookie:          j.Cookie,
		Profile:         j.Profile.Name(),
		Host:            j.Host.Name(),
		Testsuite:       j.Testsuite.Name,
		State:           j.State().Name,
		IsEndState:      j.IsEndState(),
		CurrentStep:     j.CurrentStep(),
		Results:         j.Results(),
		Timeout:         j.Testsuite.Timeout(),
		Runtime:         j.Runtime(),
		CreatedAt:       j.CreatedAt,
		Artifacts:       artifacts,
		AdditionalKargs: j.AdditionalKargs,
		Result:          j.Result(),
	}
}
