package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fabiand/igor/internal/inventory"
	"github.com/fabiand/igor/internal/job"
	"github.com/fabiand/igor/internal/reports"
	"github.com/fabiand/igor/internal/testdef"
)

func (s *Server) lookupTestplan(w http.ResponseWriter, name string) (*testdef.Testplan, bool) {
	item, ok := s.Inv.Lookup(inventory.CategoryPlans, name)
	if !ok {
		writeError(w, job.ErrNotFound)
		return nil, false
	}
	plan, ok := item.(*testdef.Testplan)
	if !ok {
		writeError(w, job.ErrNotFound)
		return nil, false
	}
	return plan, true
}

func (s *Server) listTestplans(w http.ResponseWriter, r *http.Request) {
	items, err := s.Inv.Items(inventory.CategoryPlans)
	if err != nil {
		writeError(w, err)
		return
	}
	names := make([]string, 0, len(items))
	for name := range items {
		names = append(names, name)
	}
	writeValue(w, r, names)
}

// variable is one plan-variable key/value pair. A named slice element is
// required here, same as testsuiteValidation: encoding/xml cannot
// marshal the map[string]string Testplan.Variables holds directly.
type variable struct {
	Name  string `json:"name" xml:"name" yaml:"name"`
	Value string `json:"value" xml:"value" yaml:"value"`
}

type planView struct {
	Name        string      `json:"name" xml:"name" yaml:"name"`
	Description string      `json:"description" xml:"description" yaml:"description"`
	JobLayouts  int         `json:"job_layouts" xml:"job_layouts" yaml:"job_layouts"`
	Variables   []variable  `json:"variables" xml:"variables" yaml:"variables"`
}

func newPlanView(plan *testdef.Testplan) planView {
	vars := make([]variable, 0, len(plan.Variables))
	for name, value := range plan.Variables {
		vars = append(vars, variable{Name: name, Value: value})
	}
	return planView{
		Name:        plan.Name,
		Description: plan.Description,
		JobLayouts:  len(plan.JobLayouts),
		Variables:   vars,
	}
}

func (s *Server) testplanEntity(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.lookupTestplan(w, mux.Vars(r)["name"])
	if !ok {
		return
	}
	writeValue(w, r, newPlanView(plan))
}

// submitPlan overlays every query parameter onto the plan's declared
// variables before starting it, letting a caller parameterize a plan
// template per spec.md §4.6 without editing its definition.
func (s *Server) submitPlan(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.lookupTestplan(w, mux.Vars(r)["name"])
	if !ok {
		return
	}

	instance := *plan
	instance.Variables = map[string]string{}
	for k, v := range plan.Variables {
		instance.Variables[k] = v
	}
	for k, values := range r.URL.Query() {
		if len(values) > 0 {
			instance.Variables[k] = values[0]
		}
	}

	if _, err := s.Center.SubmitPlan(instance); err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, r, statusResponse{Status: "running", Name: instance.Name})
}

func (s *Server) abortPlan(w http.ResponseWriter, r *http.Request) {
	if err := s.Center.AbortPlan(mux.Vars(r)["name"]); err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, r, statusResponse{Status: "aborted"})
}

func (s *Server) planStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Center.StatusPlan(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, r, snap)
}

// planReportRST concatenates the RST report of every job the plan ran.
func (s *Server) planReportRST(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Center.StatusPlan(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}
	var out []byte
	for _, cookieStr := range snap.Cookies {
		j, ok := s.Center.Lookup(cookieStr)
		if !ok {
			continue
		}
		chunk, err := reports.RST(j.Snapshot())
		if err != nil {
			writeError(w, err)
			return
		}
		out = append(out, chunk...)
		out = append(out, '\n')
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(out)
}

// planReportJUnit renders one JUnit <testsuite> per job the plan ran,
// wrapped in a <testsuites> root so the whole plan is one valid document.
func (s *Server) planReportJUnit(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Center.StatusPlan(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` + "\n<testsuites>\n"))
	for _, cookieStr := range snap.Cookies {
		j, ok := s.Center.Lookup(cookieStr)
		if !ok {
			continue
		}
		chunk, err := reports.JUnit(j.Snapshot())
		if err != nil {
			writeError(w, err)
			return
		}
		w.Write(chunk)
	}
	w.Write([]byte("</testsuites>\n"))
}
