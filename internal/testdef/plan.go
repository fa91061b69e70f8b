package testdef

import (
	"context"
	"fmt"
	"regexp"

	"github.com/fabiand/igor/internal/inventory"
	"github.com/fabiand/igor/pkg/log"
)

// varPattern matches an unresolved {name} placeholder.
var varPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// FieldRef is either a bare entity name or a (name, property-overrides)
// pair, the way a Testplan's job layout may refer to a testsuite,
// profile, host or kernel-args string.
type FieldRef struct {
	Name      string
	Overrides map[string]string
}

// UnmarshalYAML accepts either a scalar string or a two-element
// [name, overrides] sequence.
func (f *FieldRef) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var asString string
	if err := unmarshal(&asString); err == nil {
		f.Name = asString
		return nil
	}

	var asPair []interface{}
	if err := unmarshal(&asPair); err != nil {
		return err
	}
	if len(asPair) != 2 {
		return fmt.Errorf("field ref must be a name or a [name, overrides] pair, got %d elements", len(asPair))
	}
	name, ok := asPair[0].(string)
	if !ok {
		return fmt.Errorf("field ref name must be a string")
	}
	f.Name = name
	f.Overrides = map[string]string{}
	if raw, ok := asPair[1].(map[string]interface{}); ok {
		for k, v := range raw {
			f.Overrides[k] = fmt.Sprintf("%v", v)
		}
	}
	return nil
}

// JobLayout names the four resolved fields of one job in a plan.
type JobLayout struct {
	Testsuite       FieldRef `yaml:"testsuite"`
	Profile         FieldRef `yaml:"profile"`
	Host            FieldRef `yaml:"host"`
	AdditionalKargs FieldRef `yaml:"additional_kargs"`
}

// Testplan is a sequence of job layouts plus variables substituted into
// every field before resolution.
type Testplan struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description" json:"description"`
	JobLayouts  []JobLayout       `yaml:"job_layouts" json:"job_layouts"`
	Variables   map[string]string `yaml:"variables" json:"variables"`
}

// JobSpec is a layout entry resolved against real entities.
type JobSpec struct {
	Testsuite       *Testsuite
	Profile         inventory.Profile
	Host            inventory.Host
	AdditionalKargs string
}

// substitute replaces every {var} in s using vars. It returns an error if
// any placeholder remains unresolved.
func substitute(s string, vars map[string]string) (string, error) {
	out := varPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[1 : len(match)-1]
		if v, ok := vars[name]; ok {
			return v
		}
		return match
	})
	if varPattern.MatchString(out) {
		return "", fmt.Errorf("variables could not be substituted in %q", s)
	}
	return out, nil
}

// applyOverrides hands overrides to an item implementing
// inventory.OverrideApplier, which applies only the properties it
// declares settable and ignores the rest -- the typed replacement for the
// original implementation's attribute-dict copy. Which keys the item
// ignored is not reported, so nothing is logged for them; an item without
// OverrideApplier gets no overrides applied, with a debug log.
func applyOverrides(item any, overrides map[string]string) {
	if len(overrides) == 0 {
		return
	}
	applier, ok := item.(inventory.OverrideApplier)
	if !ok {
		log.Debugf("item %v does not support overrides, ignoring %v", item, overrides)
		return
	}
	applier.ApplyOverrides(overrides)
}

func resolve(inv *inventory.Inventory, cat inventory.Category, ref FieldRef, vars map[string]string) (any, error) {
	name, err := substitute(ref.Name, vars)
	if err != nil {
		return nil, err
	}
	item, ok := inv.Lookup(cat, name)
	if !ok {
		return nil, fmt.Errorf("%s %q not found", cat, name)
	}
	applyOverrides(item, ref.Overrides)
	return item, nil
}

// JobSpecs lazily resolves each job layout in order, so that a later
// layout can observe side effects (e.g. overrides) applied while
// resolving an earlier one. planID is merged into vars under "planid".
func (p Testplan) JobSpecs(ctx context.Context, inv *inventory.Inventory, planID string) <-chan JobSpecOrError {
	out := make(chan JobSpecOrError)

	vars := map[string]string{}
	for k, v := range p.Variables {
		vars[k] = v
	}
	vars["planid"] = planID

	go func() {
		defer close(out)
		for _, layout := range p.JobLayouts {
			spec, err := p.resolveLayout(inv, layout, vars)
			select {
			case out <- JobSpecOrError{Spec: spec, Err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	return out
}

// JobSpecOrError carries either a resolved JobSpec or the error that
// stopped resolution, mirroring a generator that can raise mid-iteration.
type JobSpecOrError struct {
	Spec JobSpec
	Err  error
}

func (p Testplan) resolveLayout(inv *inventory.Inventory, layout JobLayout, vars map[string]string) (JobSpec, error) {
	suiteAny, err := resolve(inv, inventory.CategoryTestsuites, layout.Testsuite, vars)
	if err != nil {
		return JobSpec{}, err
	}
	suite, ok := suiteAny.(*Testsuite)
	if !ok {
		return JobSpec{}, fmt.Errorf("testsuite %q is not a *testdef.Testsuite", layout.Testsuite.Name)
	}

	profileAny, err := resolve(inv, inventory.CategoryProfiles, layout.Profile, vars)
	if err != nil {
		return JobSpec{}, err
	}
	profile, ok := profileAny.(inventory.Profile)
	if !ok {
		return JobSpec{}, fmt.Errorf("profile %q does not implement inventory.Profile", layout.Profile.Name)
	}

	hostAny, err := resolve(inv, inventory.CategoryHosts, layout.Host, vars)
	if err != nil {
		return JobSpec{}, err
	}
	host, ok := hostAny.(inventory.Host)
	if !ok {
		return JobSpec{}, fmt.Errorf("host %q does not implement inventory.Host", layout.Host.Name)
	}

	kargs := layout.AdditionalKargs.Name
	if kargs != "" {
		kargs, err = substitute(kargs, vars)
		if err != nil {
			return JobSpec{}, err
		}
	}

	return JobSpec{
		Testsuite:       suite,
		Profile:         profile,
		Host:            host,
		AdditionalKargs: kargs,
	}, nil
}
