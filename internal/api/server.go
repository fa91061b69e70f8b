// Package api mounts every HTTP route from spec.md §6.2 over
// gorilla/mux, negotiating json/xml/yaml response formats the way the
// teacher's internal/api/rest.go negotiates the single JSON format it
// supports, generalized to a closed set of three.
package api

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"

	"github.com/fabiand/igor/internal/inventory"
	"github.com/fabiand/igor/internal/job"
	"github.com/fabiand/igor/internal/jobcenter"
	"github.com/fabiand/igor/pkg/log"
)

// Server holds every collaborator an HTTP handler needs, threaded in
// explicitly rather than through package-level globals, per spec.md §9's
// "Global Inventory/JobCenter singletons" design note.
type Server struct {
	Center  *jobcenter.Center
	Inv     *inventory.Inventory
	BaseURL string
}

// MountRoutes registers every route in spec.md §6.2 onto r.
func (s *Server) MountRoutes(r *mux.Router) {
	r.HandleFunc("/", s.index).Methods(http.MethodGet)

	r.HandleFunc("/jobs", s.listJobs).Methods(http.MethodGet)
	r.HandleFunc("/jobs/submit/{suite}/with/{profile}/on/{host}", s.submitJob).Methods(http.MethodGet)
	r.HandleFunc("/jobs/submit/{suite}/with/{profile}/on/{host}/{cookie}", s.submitJob).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{cookie}/start", s.startJob).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{cookie}/status", s.jobStatus).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{cookie}/report", s.jobReportRST).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{cookie}/report/junit", s.jobReportJUnit).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{cookie}/step/{n}/skip", s.stepSkip).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{cookie}/step/{n}/{result:success|failed}", s.stepFinish).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{cookie}/step/{n}/result", s.stepResult).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{cookie}/step/current/annotate", s.annotate).Methods(http.MethodPut)
	r.HandleFunc("/jobs/{cookie}/abort", s.abortJob).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{cookie}", s.abortJob).Methods(http.MethodDelete)
	r.HandleFunc("/jobs/{cookie}/testsuite", s.jobTestsuiteArchive).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{cookie}/artifacts", s.listArtifacts).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{cookie}/archive", s.artifactsArchive).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{cookie}/artifacts/{name}", s.putArtifact).Methods(http.MethodPut)
	r.HandleFunc("/jobs/{cookie}/artifacts/{name}", s.getArtifact).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{cookie}/set/enable_pxe/{enable:true|false}", s.setPXE).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{cookie}/set/kernelargs/{args}", s.setKernelArgs).Methods(http.MethodGet)

	r.HandleFunc("/testjob/{cookie}", s.bootstrapScript).Methods(http.MethodGet)

	r.HandleFunc("/testsuites", s.listTestsuites).Methods(http.MethodGet)
	r.HandleFunc("/testsuites/validate", s.validateTestsuites).Methods(http.MethodGet)
	r.HandleFunc("/testsuites/{name}/summary", s.testsuiteSummary).Methods(http.MethodGet)
	r.HandleFunc("/testsuites/{name}/download", s.testsuiteDownload).Methods(http.MethodGet)
	r.HandleFunc("/testsuites/{name}/download/{fn}", s.testsuiteDownload).Methods(http.MethodGet)

	r.HandleFunc("/testplans", s.listTestplans).Methods(http.MethodGet)
	r.HandleFunc("/testplans/{name}", s.testplanEntity).Methods(http.MethodGet)
	r.HandleFunc("/testplans/{name}/submit", s.submitPlan).Methods(http.MethodGet)
	r.HandleFunc("/testplans/{name}/abort", s.abortPlan).Methods(http.MethodGet)
	r.HandleFunc("/testplans/{name}/status", s.planStatus).Methods(http.MethodGet)
	r.HandleFunc("/testplans/{name}/report", s.planReportRST).Methods(http.MethodGet)
	r.HandleFunc("/testplans/{name}/report/junit", s.planReportJUnit).Methods(http.MethodGet)

	r.HandleFunc("/profiles", s.listProfiles).Methods(http.MethodGet)
	r.HandleFunc("/hosts", s.listHosts).Methods(http.MethodGet)
	r.HandleFunc("/profiles/{name}", s.createProfile).Methods(http.MethodPut)
	r.HandleFunc("/profiles/{name}", s.deleteProfile).Methods(http.MethodDelete)
	r.HandleFunc("/profiles/{name}/kargs", s.getProfileKargs).Methods(http.MethodGet)
	r.HandleFunc("/profiles/{name}/kargs", s.setProfileKargs).Methods(http.MethodPost)
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>igord</h1></body></html>")
}

// format picks the response encoding from ?format=, defaulting to json.
func format(r *http.Request) string {
	switch r.URL.Query().Get("format") {
	case "xml":
		return "xml"
	case "yaml":
		return "yaml"
	default:
		return "json"
	}
}

// writeValue marshals v per the request's negotiated format.
func writeValue(w http.ResponseWriter, r *http.Request, v any) {
	switch format(r) {
	case "xml":
		w.Header().Set("Content-Type", "application/xml")
		enc := xml.NewEncoder(w)
		if err := enc.Encode(v); err != nil {
			log.Warnf("api: xml encode response: %v", err)
		}
	case "yaml":
		w.Header().Set("Content-Type", "application/yaml")
		if err := yaml.NewEncoder(w).Encode(v); err != nil {
			log.Warnf("api: yaml encode response: %v", err)
		}
	default:
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(v); err != nil {
			log.Warnf("api: json encode response: %v", err)
		}
	}
}

// writeError maps a typed error to spec.md §7's status codes: not-found
// → 404 empty body, precondition → 412, anything else → 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, job.ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, job.ErrPrecondition):
		w.WriteHeader(http.StatusPreconditionFailed)
		fmt.Fprint(w, err.Error())
	default:
		log.Errorf("api: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, err.Error())
	}
}

func (s *Server) lookupJob(w http.ResponseWriter, cookie string) (*job.Job, bool) {
	j, ok := s.Center.Lookup(cookie)
	if !ok {
		writeError(w, job.ErrNotFound)
		return nil, false
	}
	return j, true
}
