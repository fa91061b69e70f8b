package testdef

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabiand/igor/internal/inventory"
)

type fakeHost struct{ name string }

func (h *fakeHost) Name() string       { return h.name }
func (h *fakeHost) Prepare() error     { return nil }
func (h *fakeHost) Start() error       { return nil }
func (h *fakeHost) MACAddress() string { return "00:00:00:00:00:00" }
func (h *fakeHost) Purge() error       { return nil }

type fakeProfile struct {
	name  string
	kargs string
}

func (p *fakeProfile) Name() string                                       { return p.name }
func (p *fakeProfile) AssignTo(inventory.Host, string) error              { return nil }
func (p *fakeProfile) RevokeFrom(inventory.Host) error                    { return nil }
func (p *fakeProfile) EnablePXE(inventory.Host, bool) error               { return nil }
func (p *fakeProfile) Delete() error                                      { return nil }
func (p *fakeProfile) Kargs(set *string) (string, error) {
	if set != nil {
		p.kargs = *set
	}
	return p.kargs, nil
}
func (p *fakeProfile) ApplyOverrides(props map[string]string) {
	if v, ok := props["kargs"]; ok {
		p.kargs = v
	}
}

type testOrigin struct {
	name  string
	items map[string]any
}

func (o *testOrigin) Name() string             { return o.name }
func (o *testOrigin) Items() map[string]any     { return o.items }
func (o *testOrigin) Lookup(n string) (any, bool) {
	v, ok := o.items[n]
	return v, ok
}

func buildInventory() *inventory.Inventory {
	inv := inventory.New()
	suite := sampleSuite()
	inv.Register(inventory.CategoryTestsuites, &testOrigin{name: "suites", items: map[string]any{"suite1": &suite}})
	inv.Register(inventory.CategoryProfiles, &testOrigin{name: "profiles", items: map[string]any{"p1": &fakeProfile{name: "p1"}}})
	inv.Register(inventory.CategoryHosts, &testOrigin{name: "hosts", items: map[string]any{"h1": &fakeHost{name: "h1"}}})
	return inv
}

func TestJobSpecsResolvesVariableSubstitution(t *testing.T) {
	inv := buildInventory()
	plan := Testplan{
		Name:      "plan1",
		Variables: map[string]string{"profile_pri": "p1"},
		JobLayouts: []JobLayout{
			{
				Testsuite: FieldRef{Name: "suite1"},
				Profile:   FieldRef{Name: "{profile_pri}"},
				Host:      FieldRef{Name: "h1"},
			},
		},
	}

	var specs []JobSpec
	for item := range plan.JobSpecs(context.Background(), inv, "plan1") {
		require.NoError(t, item.Err)
		specs = append(specs, item.Spec)
	}

	require.Len(t, specs, 1)
	assert.Equal(t, "p1", specs[0].Profile.Name())
	assert.Equal(t, "h1", specs[0].Host.Name())
}

func TestJobSpecsFailsOnUnsubstitutedVariable(t *testing.T) {
	inv := buildInventory()
	plan := Testplan{
		Name:      "plan1",
		Variables: map[string]string{},
		JobLayouts: []JobLayout{
			{
				Testsuite: FieldRef{Name: "suite1"},
				Profile:   FieldRef{Name: "{profile_pri}"},
				Host:      FieldRef{Name: "h1"},
			},
		},
	}

	var gotErr bool
	for item := range plan.JobSpecs(context.Background(), inv, "plan1") {
		if item.Err != nil {
			gotErr = true
		}
	}
	assert.True(t, gotErr)
}

func TestJobSpecsAppliesOverrides(t *testing.T) {
	inv := buildInventory()
	plan := Testplan{
		Name: "plan1",
		JobLayouts: []JobLayout{
			{
				Testsuite: FieldRef{Name: "suite1"},
				Profile:   FieldRef{Name: "p1", Overrides: map[string]string{"kargs": "console=ttyS0", "unknownprop": "x"}},
				Host:      FieldRef{Name: "h1"},
			},
		},
	}

	var specs []JobSpec
	for item := range plan.JobSpecs(context.Background(), inv, "plan1") {
		require.NoError(t, item.Err)
		specs = append(specs, item.Spec)
	}

	require.Len(t, specs, 1)
	kargs, err := specs[0].Profile.Kargs(nil)
	require.NoError(t, err)
	assert.Equal(t, "console=ttyS0", kargs)
}
