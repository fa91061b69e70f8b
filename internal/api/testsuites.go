package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fabiand/igor/internal/inventory"
	"github.com/fabiand/igor/internal/job"
	"github.com/fabiand/igor/internal/testdef"
)

func (s *Server) lookupTestsuite(w http.ResponseWriter, name string) (*testdef.Testsuite, bool) {
	item, ok := s.Inv.Lookup(inventory.CategoryTestsuites, name)
	if !ok {
		writeError(w, job.ErrNotFound)
		return nil, false
	}
	suite, ok := item.(*testdef.Testsuite)
	if !ok {
		writeError(w, job.ErrNotFound)
		return nil, false
	}
	return suite, true
}

func (s *Server) listTestsuites(w http.ResponseWriter, r *http.Request) {
	items, err := s.Inv.Items(inventory.CategoryTestsuites)
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

// testsuiteValidation is one entry of the /testsuites/validate response.
// A named slice element (rather than map[string]bool) is required since
// encoding/xml cannot marshal maps.
type testsuiteValidation struct {
	Name  string `json:"name" xml:"name" yaml:"name"`
	Valid bool   `json:"valid" xml:"valid" yaml:"valid"`
}

// validateTestsuites reports, per known testsuite, whether every
// testcase it flattens to resolves to a non-empty body -- the cheapest
// check that a suite is actually loadable before a plan references it.
func (s *Server) validateTestsuites(w http.ResponseWriter, r *http.Request) {
	items, err := s.Inv.Items(inventory.CategoryTestsuites)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]testsuiteValidation, 0, len(items))
	for name, item := range items {
		suite, ok := item.(*testdef.Testsuite)
		if !ok {
			out = append(out, testsuiteValidation{Name: name, Valid: false})
			continue
		}
		valid := true
		for _, tc := range suite.Flatten() {
			if len(tc.Body) == 0 {
				valid = false
				break
			}
		}
		out = append(out, testsuiteValidation{Name: name, Valid: valid})
	}
	writeValue(w, r, out)
}

func (s *Server) testsuiteSummary(w http.ResponseWriter, r *http.Request) {
	suite, ok := s.lookupTestsuite(w, mux.Vars(r)["name"])
	if !ok {
		return
	}
	writeValue(w, r, struct {
		Name        string `json:"name" xml:"name" yaml:"name"`
		Description string `json:"description" xml:"description" yaml:"description"`
		Testcases   int    `json:"testcases" xml:"testcases" yaml:"testcases"`
	}{
		Name:        suite.Name,
		Description: suite.Description,
		Testcases:   len(suite.Flatten()),
	})
}

func (s *Server) testsuiteDownload(w http.ResponseWriter, r *http.Request) {
	suite, ok := s.lookupTestsuite(w, mux.Vars(r)["name"])
	if !ok {
		return
	}
	out, err := suite.Archive(suiteLibs(suite), nil)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/gzip")
	w.Write(out)
}
