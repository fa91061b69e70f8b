// Package jobcenter implements the Orchestrator: submission, the
// host-pool mutual-exclusion rule, the pending/GC FIFOs and the
// background worker that drives jobs through setup/start/end, per
// spec.md §4.5.
package jobcenter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"gopkg.in/tomb.v2"

	"github.com/fabiand/igor/internal/cookie"
	"github.com/fabiand/igor/internal/inventory"
	"github.com/fabiand/igor/internal/job"
	"github.com/fabiand/igor/internal/planworker"
	"github.com/fabiand/igor/internal/session"
	"github.com/fabiand/igor/internal/testdef"
	"github.com/fabiand/igor/pkg/log"
)

// Config bounds the JobWorker's background behavior.
type Config struct {
	TickInterval     time.Duration
	WatchdogInterval time.Duration
	CleanupAge       time.Duration
	MaxCleanedJobs   int
	SessionRoot      string
	CallbackURL      func(cookie string) string
}

func (c *Config) setDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = 10 * time.Second
	}
	if c.WatchdogInterval <= 0 {
		c.WatchdogInterval = job.DefaultWatchdogInterval
	}
	if c.CleanupAge <= 0 {
		c.CleanupAge = 5 * time.Minute
	}
	if c.MaxCleanedJobs <= 0 {
		c.MaxCleanedJobs = 10
	}
}

// Center is the Orchestrator singleton: one per daemon process.
type Center struct {
	cfg   Config
	inv   *inventory.Inventory
	hooks job.HookRunner
	mint  *cookie.Minter

	mu           sync.Mutex
	jobs         map[string]*job.Job
	closedJobs   []*job.Job
	pending      []string
	endedGC      []string
	hostsInUse   map[string]bool
	runningPlans map[string]*planworker.Worker
	planResults  map[string]planworker.Snapshot

	sched  gocron.Scheduler
	worker *tomb.Tomb
}

// New constructs a Center bound to inv for entity lookup and hr for hook
// fan-out (typically a runner that scripts-and-publishes, combining
// hooks.Runner with an events.Publisher). The background JobWorker tick
// (claimPending/endTerminal/sweepGC) is driven by a gocron.Scheduler job
// registered on cfg.TickInterval; plan reaping goroutines are tracked by
// a tomb so Stop can wait for both to drain before returning.
func New(cfg Config, inv *inventory.Inventory, hr job.HookRunner) *Center {
	cfg.setDefaults()
	c := &Center{
		cfg:          cfg,
		inv:          inv,
		hooks:        hr,
		mint:         cookie.New(),
		jobs:         map[string]*job.Job{},
		hostsInUse:   map[string]bool{},
		runningPlans: map[string]*planworker.Worker{},
		planResults:  map[string]planworker.Snapshot{},
	}
	c.worker = &tomb.Tomb{}
	// Keep the tomb alive until Stop: a tomb with no running goroutine
	// never reports dead (Wait would block) and refuses further Go calls.
	c.worker.Go(func() error {
		<-c.worker.Dying()
		return nil
	})

	sched, err := gocron.NewScheduler()
	if err != nil {
		// gocron.NewScheduler only fails if its internal clock option is
		// rejected; we never pass one, so this is unreachable in practice.
		panic(fmt.Sprintf("jobcenter: create scheduler: %v", err))
	}
	c.sched = sched
	if _, err := c.sched.NewJob(
		gocron.DurationJob(c.cfg.TickInterval),
		gocron.NewTask(c.tick),
	); err != nil {
		panic(fmt.Sprintf("jobcenter: register tick job: %v", err))
	}
	c.sched.Start()

	return c
}

// Stop shuts down the tick scheduler and waits for any tomb-tracked plan
// reaping goroutines to finish.
func (c *Center) Stop() error {
	if err := c.sched.Shutdown(); err != nil {
		log.Errorf("jobcenter: scheduler shutdown: %v", err)
	}
	c.worker.Kill(nil)
	return c.worker.Wait()
}

// Submit mints a cookie (or accepts preferred, if given and unused),
// constructs a Job in the open state and stores it. It does not start
// the job.
func (c *Center) Submit(spec testdef.JobSpec, preferred string) (string, *job.Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	isLive := func(candidate string) bool {
		_, exists := c.jobs[candidate]
		return exists
	}
	if preferred != "" && isLive(preferred) {
		return "", nil, fmt.Errorf("%w: cookie %q already in use", job.ErrPrecondition, preferred)
	}
	cookieStr := c.mint.Mint(preferred, isLive)

	sess, err := session.New(c.cfg.SessionRoot, cookieStr)
	if err != nil {
		return "", nil, fmt.Errorf("create session: %w", err)
	}

	j := job.New(cookieStr, spec.Testsuite, spec.Profile, spec.Host, sess, spec.AdditionalKargs,
		job.WithHookRunner(c.hooks), job.WithWatchdogInterval(c.cfg.WatchdogInterval))
	c.jobs[cookieStr] = j
	return cookieStr, j, nil
}

// StartJob appends cookie to the pending FIFO; the JobWorker claims it
// once its host is free.
func (c *Center) StartJob(cookieStr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.jobs[cookieStr]; !ok {
		return fmt.Errorf("%w: job %q", job.ErrNotFound, cookieStr)
	}
	c.pending = append(c.pending, cookieStr)
	return nil
}

// Lookup returns the job for cookie, if known.
func (c *Center) Lookup(cookieStr string) (*job.Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[cookieStr]
	return j, ok
}

func (c *Center) lookup(cookieStr string) (*job.Job, error) {
	c.mu.Lock()
	j, ok := c.jobs[cookieStr]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: job %q", job.ErrNotFound, cookieStr)
	}
	return j, nil
}

// FinishTestStep is a thin delegating wrapper per spec.md §4.5.
func (c *Center) FinishTestStep(cookieStr string, n int, isSuccess bool, note string, logData []byte) (job.StepResult, error) {
	j, err := c.lookup(cookieStr)
	if err != nil {
		return job.StepResult{}, err
	}
	return j.FinishStep(n, isSuccess, note, false, false, logData)
}

// SkipStep is finish_step with is_skipped=true, is_success=true.
func (c *Center) SkipStep(cookieStr string, n int, note string) (job.StepResult, error) {
	j, err := c.lookup(cookieStr)
	if err != nil {
		return job.StepResult{}, err
	}
	return j.FinishStep(n, true, note, false, true, nil)
}

// TestStepResult returns the recorded StepResult for step n, if any.
func (c *Center) TestStepResult(cookieStr string, n int) (job.StepResult, error) {
	j, err := c.lookup(cookieStr)
	if err != nil {
		return job.StepResult{}, err
	}
	results := j.Results()
	if n < 0 || n >= len(results) {
		return job.StepResult{}, fmt.Errorf("%w: step %d not yet finished", job.ErrNotFound, n)
	}
	return results[n], nil
}

// AbortJob aborts the named job.
func (c *Center) AbortJob(cookieStr string) error {
	j, err := c.lookup(cookieStr)
	if err != nil {
		return err
	}
	return j.Abort()
}

// ErrPlanAlreadyRunning is returned by SubmitPlan when a plan with the
// same name is already in running_plans.
var ErrPlanAlreadyRunning = fmt.Errorf("%w: plan already running", job.ErrPrecondition)

// SubmitPlan starts a PlanWorker for plan, rejecting a duplicate name
// among currently running plans.
func (c *Center) SubmitPlan(plan testdef.Testplan) (*planworker.Worker, error) {
	c.mu.Lock()
	if _, ok := c.runningPlans[plan.Name]; ok {
		c.mu.Unlock()
		return nil, ErrPlanAlreadyRunning
	}
	c.mu.Unlock()

	specs := func(ctx context.Context, planID string) <-chan testdef.JobSpecOrError {
		return plan.JobSpecs(ctx, c.inv, planID)
	}
	w := planworker.New(plan.Name, plan, c, specs)

	c.mu.Lock()
	c.runningPlans[plan.Name] = w
	c.mu.Unlock()

	c.worker.Go(func() error {
		select {
		case <-w.Done():
		case <-c.worker.Dying():
			return nil
		}
		c.mu.Lock()
		delete(c.runningPlans, plan.Name)
		c.planResults[plan.Name] = w.Snapshot()
		c.mu.Unlock()
		return nil
	})

	return w, nil
}

// StatusPlan returns the snapshot of a running or completed plan.
func (c *Center) StatusPlan(name string) (planworker.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if w, ok := c.runningPlans[name]; ok {
		return w.Snapshot(), nil
	}
	if snap, ok := c.planResults[name]; ok {
		return snap, nil
	}
	return planworker.Snapshot{}, fmt.Errorf("%w: plan %q", job.ErrNotFound, name)
}

// AbortPlan stops a running plan, aborting its in-flight job.
func (c *Center) AbortPlan(name string) error {
	c.mu.Lock()
	w, ok := c.runningPlans[name]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: plan %q not running", job.ErrNotFound, name)
	}
	w.Stop()
	return nil
}

// tick is the JobWorker step, run once per cfg.TickInterval by the
// scheduler job registered in New.
func (c *Center) tick() {
	c.claimPending()
	c.endTerminal()
	c.sweepGC()
}

// claimPending implements step 1: the only place a host is claimed.
func (c *Center) claimPending() {
	c.mu.Lock()
	remaining := c.pending[:0:0]
	var toStart []*job.Job
	for _, cookieStr := range c.pending {
		j, ok := c.jobs[cookieStr]
		if !ok {
			continue // already removed out from under us, drop silently
		}
		hostName := j.Host.Name()
		if c.hostsInUse[hostName] {
			remaining = append(remaining, cookieStr)
			continue
		}
		c.hostsInUse[hostName] = true
		toStart = append(toStart, j)
	}
	c.pending = remaining
	c.mu.Unlock()

	for _, j := range toStart {
		c.hooks.Run(job.HookPreJob, j.Cookie)
		if err := j.Setup(c.cfg.CallbackURL); err != nil {
			log.Errorf("jobcenter: setup job %s: %v", j.Cookie, err)
			c.releaseHost(j.Host.Name())
			continue
		}
		if err := j.Start(); err != nil {
			log.Errorf("jobcenter: start job %s: %v", j.Cookie, err)
			c.releaseHost(j.Host.Name())
		}
	}
}

func (c *Center) releaseHost(hostName string) {
	c.mu.Lock()
	delete(c.hostsInUse, hostName)
	c.mu.Unlock()
}

// endTerminal implements step 2.
func (c *Center) endTerminal() {
	c.mu.Lock()
	var toEnd []*job.Job
	for _, j := range c.jobs {
		if j.IsEndState() && j.EndedAt() == nil {
			toEnd = append(toEnd, j)
		}
	}
	c.mu.Unlock()

	for _, j := range toEnd {
		c.hooks.Run(job.HookPostJob, j.Cookie)
		if err := j.End(); err != nil {
			log.Errorf("jobcenter: end job %s: %v", j.Cookie, err)
			continue
		}
		c.releaseHost(j.Host.Name())

		c.mu.Lock()
		c.endedGC = append(c.endedGC, j.Cookie)
		c.closedJobs = append(c.closedJobs, j)
		c.mu.Unlock()
	}
}

// sweepGC implements step 3.
func (c *Center) sweepGC() {
	for {
		c.mu.Lock()
		if len(c.endedGC) <= c.cfg.MaxCleanedJobs {
			c.mu.Unlock()
			return
		}

		idx, cookieStr := c.oldestEligibleLocked()
		if idx < 0 {
			c.mu.Unlock()
			return
		}
		j := c.jobs[cookieStr]
		c.endedGC = append(c.endedGC[:idx], c.endedGC[idx+1:]...)
		c.mu.Unlock()

		if j == nil {
			continue
		}
		if err := j.Clean(); err != nil {
			log.Errorf("jobcenter: clean job %s: %v", cookieStr, err)
			continue
		}

		c.mu.Lock()
		delete(c.jobs, cookieStr)
		c.mu.Unlock()
	}
}

// oldestEligibleLocked assumes mu is held. It returns the index within
// endedGC of the oldest entry whose end-time is at least CleanupAge in
// the past, or -1 if none qualify yet.
func (c *Center) oldestEligibleLocked() (int, string) {
	cutoff := time.Now().Add(-c.cfg.CleanupAge)
	bestIdx := -1
	var bestEnded time.Time
	for i, cookieStr := range c.endedGC {
		j, ok := c.jobs[cookieStr]
		if !ok {
			return i, cookieStr // stale entry, drop it immediately
		}
		ended := j.EndedAt()
		if ended == nil || ended.After(cutoff) {
			continue
		}
		if bestIdx < 0 || ended.Before(bestEnded) {
			bestIdx = i
			bestEnded = *ended
		}
	}
	return bestIdx, c.cookieAt(bestIdx)
}

func (c *Center) cookieAt(idx int) string {
	if idx < 0 {
		return ""
	}
	return c.endedGC[idx]
}

// Jobs returns a snapshot slice of every live (not yet cleaned) job.
func (c *Center) Jobs() []*job.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*job.Job, 0, len(c.jobs))
	for _, j := range c.jobs {
		out = append(out, j)
	}
	return out
}

// ClosedJobs returns every job that has been ended, most-recently-ended
// last. A job stays in this list after it is cleaned and dropped from the
// live map, and until then it is also returned by Jobs.
func (c *Center) ClosedJobs() []*job.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*job.Job, len(c.closedJobs))
	copy(out, c.closedJobs)
	return out
}
