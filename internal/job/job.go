// Package job implements the Job lifecycle engine: the state machine,
// its guarded transitions, artifact bookkeeping and the per-job timeout
// watchdog described in spec.md §4.4.
package job

import (
	"fmt"
	"sync"
	"time"

	"gopkg.in/tomb.v2"
	"gopkg.in/yaml.v3"

	"github.com/fabiand/igor/internal/inventory"
	"github.com/fabiand/igor/internal/session"
	"github.com/fabiand/igor/internal/statemachine"
	"github.com/fabiand/igor/internal/testdef"
	"github.com/fabiand/igor/pkg/log"
)

// DefaultWatchdogInterval is how often the watchdog polls IsTimedOut.
const DefaultWatchdogInterval = 10 * time.Second

// HookName is one of the closed set of lifecycle hooks a Job can fire.
type HookName string

const (
	HookPreJob      HookName = "pre-job"
	HookPostJob     HookName = "post-job"
	HookPostTestcase HookName = "post-testcase"
	HookPostSetup   HookName = "post-setup"
	HookPostStart   HookName = "post-start"
	HookPostAnnotate HookName = "post-annotate"
	HookPostEnd     HookName = "post-end"
)

// HookRunner is the collaborator a Job calls into at lifecycle points.
// The JobCenter supplies the concrete implementation (internal/hooks).
type HookRunner interface {
	Run(hook HookName, cookie string)
}

// noopHookRunner is used when a Job is built without a HookRunner, e.g.
// in tests that don't care about hook fan-out.
type noopHookRunner struct{}

func (noopHookRunner) Run(HookName, string) {}

// StepResult is appended to a Job's results once a step finishes.
type StepResult struct {
	CreatedAt   time.Time       `json:"created_at" yaml:"created_at"`
	Testcase    testdef.Testcase `json:"testcase" yaml:"testcase"`
	IsSuccess   bool            `json:"is_success" yaml:"is_success"`
	IsPassed    bool            `json:"is_passed" yaml:"is_passed"`
	IsAbort     bool            `json:"is_abort" yaml:"is_abort"`
	IsSkipped   bool            `json:"is_skipped" yaml:"is_skipped"`
	Note        string          `json:"note" yaml:"note"`
	Runtime     time.Duration   `json:"runtime" yaml:"runtime"`
	Log         string          `json:"log" yaml:"log"` // artifact name, empty if not captured
	Annotations []string        `json:"annotations" yaml:"annotations"`
}

// Job is the central lifecycle entity. All compound transitions
// serialize on highMu; state reads/writes serialize inside sm. highMu is
// not reentrant: Abort calls finishStepLocked directly instead of
// re-invoking FinishStep, per the design note in spec.md §9.
type Job struct {
	Cookie          string
	Testsuite       *testdef.Testsuite
	Profile         inventory.Profile
	Host            inventory.Host
	Session         *session.Session
	AdditionalKargs string
	CreatedAt       time.Time

	sm   *statemachine.Machine
	hook HookRunner

	highMu           sync.Mutex
	results          []StepResult
	currentStep      int
	endedAt          *time.Time
	lastStepAt       time.Time
	watchdogInterval time.Duration
	watchdogTomb     *tomb.Tomb
}

// Option configures a Job at construction time.
type Option func(*Job)

// WithHookRunner overrides the default no-op hook runner.
func WithHookRunner(h HookRunner) Option {
	return func(j *Job) { j.hook = h }
}

// WithWatchdogInterval overrides DefaultWatchdogInterval.
func WithWatchdogInterval(d time.Duration) Option {
	return func(j *Job) { j.watchdogInterval = d }
}

// New constructs a Job in the open state. It does not start the
// watchdog -- per spec.md §9, that happens in Start, not here.
func New(cookie string, suite *testdef.Testsuite, profile inventory.Profile, host inventory.Host, sess *session.Session, additionalKargs string, opts ...Option) *Job {
	j := &Job{
		Cookie:           cookie,
		Testsuite:        suite,
		Profile:          profile,
		Host:             host,
		Session:          sess,
		AdditionalKargs:  additionalKargs,
		CreatedAt:        time.Now(),
		sm:               statemachine.New(StateOpen),
		hook:             noopHookRunner{},
		watchdogInterval: DefaultWatchdogInterval,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// State returns the job's current state.
func (j *Job) State() statemachine.State { return j.sm.Current() }

// IsEndState reports whether the job has reached a terminal state.
func (j *Job) IsEndState() bool { return IsEndState(j.State()) }

// Result derives a user-visible label from the current state.
func (j *Job) Result() string {
	switch j.State().Name {
	case StatePassed.Name:
		return "PASS"
	case StateFailed.Name:
		return "FAIL"
	case StateAborted.Name:
		return "ABORTED"
	case StateTimedout.Name:
		return "TIMEOUT"
	default:
		return j.State().Name
	}
}

// Runtime is how long the job has been alive: from creation to EndedAt,
// or to now if still live.
func (j *Job) Runtime() time.Duration {
	j.highMu.Lock()
	ended := j.endedAt
	j.highMu.Unlock()
	if ended != nil {
		return ended.Sub(j.CreatedAt)
	}
	return time.Since(j.CreatedAt)
}

// AllowedTimeUpToCurrentStep sums testcase.Timeout over testcases
// 0..currentStep inclusive. Zero for an empty testsuite.
func (j *Job) AllowedTimeUpToCurrentStep() time.Duration {
	j.highMu.Lock()
	step := j.currentStep
	j.highMu.Unlock()

	cases := j.Testsuite.Flatten()
	var total time.Duration
	for i := 0; i <= step && i < len(cases); i++ {
		total += cases[i].EffectiveTimeout()
	}
	return total
}

// IsTimedOut is the exact contract the watchdog enforces: runtime
// exceeding the per-step cumulative budget.
func (j *Job) IsTimedOut() bool {
	return j.Runtime() > j.AllowedTimeUpToCurrentStep()
}

// Wait blocks until the job reaches a terminal state.
func (j *Job) Wait(done <-chan struct{}) bool {
	return j.sm.WaitFor(done, IsEndState)
}

// Setup requires `open`. It prepares the host, assigns the profile (with
// a callback URL containing the cookie appended to kargs so the guest
// can call home), then transitions to `prepared`.
func (j *Job) Setup(callbackURLBuilder func(cookie string) string) error {
	j.highMu.Lock()
	defer j.highMu.Unlock()

	if !j.State().Is(StateOpen) {
		return fmt.Errorf("%w: setup requires state open, got %s", ErrPrecondition, j.State())
	}

	if err := j.Host.Prepare(); err != nil {
		return fmt.Errorf("host prepare: %w", err)
	}

	kargs := j.AdditionalKargs
	if callbackURLBuilder != nil {
		cb := callbackURLBuilder(j.Cookie)
		if kargs != "" {
			kargs = kargs + " " + cb
		} else {
			kargs = cb
		}
	}

	if err := j.Profile.AssignTo(j.Host, kargs); err != nil {
		return fmt.Errorf("profile assign: %w", err)
	}

	j.sm.Set(StatePrepared)
	j.hook.Run(HookPostSetup, j.Cookie)
	return nil
}

// Start requires `prepared`. It boots the host and starts the watchdog.
func (j *Job) Start() error {
	j.highMu.Lock()

	if !j.State().Is(StatePrepared) {
		j.highMu.Unlock()
		return fmt.Errorf("%w: start requires state prepared, got %s", ErrPrecondition, j.State())
	}

	j.sm.Set(StateRunning)
	j.lastStepAt = time.Now()

	if err := j.Host.Start(); err != nil {
		j.highMu.Unlock()
		return fmt.Errorf("host start: %w", err)
	}

	j.startWatchdogLocked()
	j.highMu.Unlock()

	j.hook.Run(HookPostStart, j.Cookie)
	return nil
}

// startWatchdogLocked assumes highMu is held.
func (j *Job) startWatchdogLocked() {
	t := &tomb.Tomb{}
	j.watchdogTomb = t
	interval := j.watchdogInterval
	if interval <= 0 {
		interval = DefaultWatchdogInterval
	}

	t.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.Dying():
				return nil
			case <-ticker.C:
				if j.IsEndState() {
					return nil
				}
				if j.IsTimedOut() {
					j.highMu.Lock()
					if !j.IsEndState() {
						j.sm.Set(StateTimedout)
					}
					j.highMu.Unlock()
					return nil
				}
			}
		}
	})
}

// stopWatchdog is safe to call multiple times and from any state.
func (j *Job) stopWatchdog() {
	j.highMu.Lock()
	t := j.watchdogTomb
	j.highMu.Unlock()
	if t != nil {
		t.Kill(nil)
	}
}

// CurrentStep returns the index of the next step expected to finish.
func (j *Job) CurrentStep() int {
	j.highMu.Lock()
	defer j.highMu.Unlock()
	return j.currentStep
}

// Results returns a copy of the recorded step results.
func (j *Job) Results() []StepResult {
	j.highMu.Lock()
	defer j.highMu.Unlock()
	out := make([]StepResult, len(j.results))
	copy(out, j.results)
	return out
}

// FinishStep requires `running` and n == CurrentStep. logData, if
// non-nil and the step did not pass, is captured as the step's log
// artifact; a passed step never captures a log.
func (j *Job) FinishStep(n int, isSuccess bool, note string, isAbort, isSkipped bool, logData []byte) (StepResult, error) {
	j.highMu.Lock()
	defer j.highMu.Unlock()
	return j.finishStepLocked(n, isSuccess, note, isAbort, isSkipped, logData)
}

func (j *Job) finishStepLocked(n int, isSuccess bool, note string, isAbort, isSkipped bool, logData []byte) (StepResult, error) {
	if !j.State().Is(StateRunning) {
		return StepResult{}, fmt.Errorf("%w: finish_step requires state running, got %s", ErrPrecondition, j.State())
	}
	if n != j.currentStep {
		return StepResult{}, fmt.Errorf("%w: finish_step(%d) does not match current step %d", ErrPrecondition, n, j.currentStep)
	}

	cases := j.Testsuite.Flatten()
	if n >= len(cases) {
		return StepResult{}, fmt.Errorf("%w: step %d out of range for %d testcases", ErrPrecondition, n, len(cases))
	}
	tc := cases[n]

	isPassed := isSuccess != tc.ExpectFailure

	now := time.Now()
	runtime := now.Sub(j.lastStepAt)
	j.lastStepAt = now

	result := StepResult{
		CreatedAt: now,
		Testcase:  tc,
		IsSuccess: isSuccess,
		IsPassed:  isPassed,
		IsAbort:   isAbort,
		IsSkipped: isSkipped,
		Note:      note,
		Runtime:   runtime,
	}

	if !isPassed && len(logData) > 0 {
		name := fmt.Sprintf("%d-log", n)
		if err := j.Session.AddArtifact(name, logData); err != nil {
			log.Warnf("job %s: capture log artifact for step %d: %v", j.Cookie, n, err)
		} else {
			result.Log = name
		}
	}

	if notes, err := j.readAnnotations(n); err == nil {
		result.Annotations = notes
	}

	j.results = append(j.results, result)
	j.currentStep++

	switch {
	case isAbort:
		j.sm.Set(StateAborted)
	case !isPassed:
		j.sm.Set(StateFailed)
	case j.currentStep >= len(cases):
		j.sm.Set(StatePassed)
	}

	if IsEndState(j.State()) {
		go j.stopWatchdog()
	}

	j.hook.Run(HookPostTestcase, j.Cookie)
	return result, nil
}

// Abort requires `running`; it is finish_step(current, success=false,
// note="aborted", is_abort=true) per spec.md §4.4, implemented directly
// against the locked helper since highMu is not reentrant.
func (j *Job) Abort() error {
	j.highMu.Lock()
	defer j.highMu.Unlock()
	_, err := j.finishStepLocked(j.currentStep, false, "aborted", true, false, nil)
	return err
}

// annotationsArtifactName follows the "<step_index>-annotations.yaml"
// naming convention from spec.md §4.4.
func annotationsArtifactName(step string) string {
	return fmt.Sprintf("%s-annotations.yaml", step)
}

func (j *Job) readAnnotations(step int) ([]string, error) {
	name := annotationsArtifactName(fmt.Sprintf("%d", step))
	data, err := j.Session.GetArtifact(name)
	if err != nil {
		return nil, err
	}
	var notes []string
	if err := yaml.Unmarshal(data, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

// Annotate appends note to the per-step annotations artifact for step
// (or the current step, if step is empty), serialized as YAML.
func (j *Job) Annotate(note string, step string, appendMode bool) error {
	j.highMu.Lock()
	if step == "" || step == "current" {
		step = fmt.Sprintf("%d", j.currentStep)
	}
	j.highMu.Unlock()

	name := annotationsArtifactName(step)

	var notes []string
	if appendMode {
		if existing, err := j.Session.GetArtifact(name); err == nil {
			yaml.Unmarshal(existing, &notes)
		}
	}
	notes = append(notes, note)

	data, err := yaml.Marshal(notes)
	if err != nil {
		return err
	}
	if err := j.Session.AddArtifact(name, data); err != nil {
		return err
	}

	j.hook.Run(HookPostAnnotate, j.Cookie)
	return nil
}

// End requires `running` or a terminal state. It always runs host.Purge
// and profile.RevokeFrom, logging (not propagating) provider failures so
// that teardown always completes.
func (j *Job) End() error {
	j.highMu.Lock()
	defer j.highMu.Unlock()

	if !j.State().Is(StateRunning) && !IsEndState(j.State()) {
		return fmt.Errorf("%w: end requires state running or terminal, got %s", ErrPrecondition, j.State())
	}

	if err := j.Host.Purge(); err != nil {
		log.Errorf("job %s: host purge failed: %v", j.Cookie, err)
	}
	if err := j.Profile.RevokeFrom(j.Host); err != nil {
		log.Errorf("job %s: profile revoke failed: %v", j.Cookie, err)
	}

	now := time.Now()
	j.endedAt = &now

	go j.stopWatchdog()

	j.hook.Run(HookPostEnd, j.Cookie)
	return nil
}

// EndedAt returns the time End() was called, or nil if the job has not
// ended yet. A nil EndedAt must never be treated as "eligible for GC":
// see spec.md §9's open question about the original's (time() -
// _ended_at) bug.
func (j *Job) EndedAt() *time.Time {
	j.highMu.Lock()
	defer j.highMu.Unlock()
	return j.endedAt
}

// Clean requires End to have already been called; it removes the
// session directory.
func (j *Job) Clean() error {
	j.highMu.Lock()
	ended := j.endedAt
	j.highMu.Unlock()

	if ended == nil {
		return fmt.Errorf("%w: clean requires end to have been called first", ErrPrecondition)
	}
	return j.Session.Remove()
}

// AddArtifactToCurrentStep names the artifact "<step_index>-<name>" per
// the session naming convention in spec.md §4.2.
func (j *Job) AddArtifactToCurrentStep(name string, data []byte) error {
	step := j.CurrentStep()
	return j.Session.AddArtifact(fmt.Sprintf("%d-%s", step, name), data)
}

func (j *Job) GetArtifact(name string) ([]byte, error) { return j.Session.GetArtifact(name) }

func (j *Job) ListArtifacts() ([]string, error) { return j.Session.ListArtifacts() }

func (j *Job) ArtifactsArchive(selection []string) ([]byte, error) {
	return j.Session.ArchiveArtifacts(selection)
}

// SetKernelArgs rewrites the profile's current kargs for this job's host.
func (j *Job) SetKernelArgs(args string) (string, error) {
	return j.Profile.Kargs(&args)
}

// SetPXE toggles PXE for this job's host.
func (j *Job) SetPXE(enable bool) error {
	return j.Profile.EnablePXE(j.Host, enable)
}
