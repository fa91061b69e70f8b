// Package hooks invokes external scripts at lifecycle points. Hook
// failures are logged and swallowed: they never change job state, per
// spec.md §7.
package hooks

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/fabiand/igor/internal/job"
	"github.com/fabiand/igor/pkg/log"
)

// Timeout bounds a single hook script's execution.
const Timeout = 30 * time.Second

// allowed is the closed set of hook names per spec.md §4.5.
var allowed = map[job.HookName]bool{
	job.HookPreJob:       true,
	job.HookPostJob:      true,
	job.HookPostTestcase: true,
	job.HookPostSetup:    true,
	job.HookPostStart:    true,
	job.HookPostAnnotate: true,
	job.HookPostEnd:      true,
}

// Runner lists a hook directory and runs every entry in it on each
// invocation. It implements job.HookRunner.
type Runner struct {
	Dir string
}

// New returns a Runner rooted at dir. An empty dir disables hook
// execution entirely (Run becomes a no-op).
func New(dir string) *Runner {
	return &Runner{Dir: dir}
}

// Run executes every file in Dir with args (hookName, cookie). Unknown
// hook names are logged and ignored. Spawn failures are logged only.
func (r *Runner) Run(hook job.HookName, cookie string) {
	if !allowed[hook] {
		log.Warnf("hooks: unknown hook name %q, ignoring", hook)
		return
	}
	if r.Dir == "" {
		return
	}

	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("hooks: list hook directory %q: %v", r.Dir, err)
		}
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(r.Dir, entry.Name())
		r.runOne(path, hook, cookie)
	}
}

func (r *Runner) runOne(path string, hook job.HookName, cookie string) {
	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, string(hook), cookie)
	if err := cmd.Run(); err != nil {
		log.Warnf("hooks: %s %s %s failed: %v", path, hook, cookie, err)
	}
}
