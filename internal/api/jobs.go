package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/fabiand/igor/internal/inventory"
	"github.com/fabiand/igor/internal/job"
	"github.com/fabiand/igor/internal/reports"
	"github.com/fabiand/igor/internal/testdef"
	"github.com/fabiand/igor/pkg/log"
)

// listJobs returns every live job plus every ended one, a live
// entry winning over a closed entry of the same cookie (a job ending and
// getting GC'd between the two reads is vanishingly unlikely but handled
// by map overwrite order below).
func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	byCookie := map[string]job.Snapshot{}
	for _, j := range s.Center.ClosedJobs() {
		byCookie[j.Cookie] = j.Snapshot()
	}
	for _, j := range s.Center.Jobs() {
		byCookie[j.Cookie] = j.Snapshot()
	}
	out := make([]job.Snapshot, 0, len(byCookie))
	for _, snap := range byCookie {
		out = append(out, snap)
	}
	writeValue(w, r, out)
}

// submitJob resolves {suite}/{profile}/{host} (and optional {cookie})
// against the inventory and submits a new job, without starting it.
func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	suiteAny, ok := s.Inv.Lookup(inventory.CategoryTestsuites, vars["suite"])
	if !ok {
		writeError(w, job.ErrNotFound)
		return
	}
	suite, ok := suiteAny.(*testdef.Testsuite)
	if !ok {
		writeError(w, job.ErrNotFound)
		return
	}

	profileAny, ok := s.Inv.Lookup(inventory.CategoryProfiles, vars["profile"])
	if !ok {
		writeError(w, job.ErrNotFound)
		return
	}
	profile, ok := profileAny.(inventory.Profile)
	if !ok {
		writeError(w, job.ErrNotFound)
		return
	}

	hostAny, ok := s.Inv.Lookup(inventory.CategoryHosts, vars["host"])
	if !ok {
		writeError(w, job.ErrNotFound)
		return
	}
	host, ok := hostAny.(inventory.Host)
	if !ok {
		writeError(w, job.ErrNotFound)
		return
	}

	spec := testdef.JobSpec{
		Testsuite:       suite,
		Profile:         profile,
		Host:            host,
		AdditionalKargs: r.URL.Query().Get("additional_kargs"),
	}

	cookieStr, j, err := s.Center.Submit(spec, vars["cookie"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, r, cookieJobResponse{Cookie: cookieStr, Job: j.Snapshot()})
}

func (s *Server) startJob(w http.ResponseWriter, r *http.Request) {
	cookieStr := mux.Vars(r)["cookie"]
	if err := s.Center.StartJob(cookieStr); err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, r, statusResponse{Status: "pending"})
}

func (s *Server) jobStatus(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookupJob(w, mux.Vars(r)["cookie"])
	if !ok {
		return
	}
	writeValue(w, r, j.Snapshot())
}

func (s *Server) jobReportRST(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookupJob(w, mux.Vars(r)["cookie"])
	if !ok {
		return
	}
	out, err := reports.RST(j.Snapshot())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(out)
}

func (s *Server) jobReportJUnit(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookupJob(w, mux.Vars(r)["cookie"])
	if !ok {
		return
	}
	out, err := reports.JUnit(j.Snapshot())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Write(out)
}

func stepIndex(r *http.Request) (int, error) {
	return strconv.Atoi(mux.Vars(r)["n"])
}

func (s *Server) stepSkip(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	n, err := stepIndex(r)
	if err != nil {
		writeError(w, job.ErrNotFound)
		return
	}
	result, err := s.Center.SkipStep(vars["cookie"], n, r.URL.Query().Get("note"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, r, result)
}

func (s *Server) stepFinish(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	n, err := stepIndex(r)
	if err != nil {
		writeError(w, job.ErrNotFound)
		return
	}

	var logData []byte
	if r.Body != nil {
		logData, _ = io.ReadAll(r.Body)
	}

	result, err := s.Center.FinishTestStep(vars["cookie"], n, vars["result"] == "success", r.URL.Query().Get("note"), logData)
	if err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, r, result)
}

func (s *Server) stepResult(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	n, err := stepIndex(r)
	if err != nil {
		writeError(w, job.ErrNotFound)
		return
	}
	result, err := s.Center.TestStepResult(vars["cookie"], n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, r, result)
}

func (s *Server) annotate(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookupJob(w, mux.Vars(r)["cookie"])
	if !ok {
		return
	}
	note, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := j.Annotate(string(note), "current", true); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) abortJob(w http.ResponseWriter, r *http.Request) {
	cookieStr := mux.Vars(r)["cookie"]
	if err := s.Center.AbortJob(cookieStr); err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, r, statusResponse{Status: "aborted"})
}

func (s *Server) jobTestsuiteArchive(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookupJob(w, mux.Vars(r)["cookie"])
	if !ok {
		return
	}
	out, err := j.Testsuite.Archive(suiteLibs(j.Testsuite), nil)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/gzip")
	w.Write(out)
}

func (s *Server) listArtifacts(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookupJob(w, mux.Vars(r)["cookie"])
	if !ok {
		return
	}
	names, err := j.ListArtifacts()
	if err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, r, names)
}

func (s *Server) artifactsArchive(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookupJob(w, mux.Vars(r)["cookie"])
	if !ok {
		return
	}
	out, err := j.ArtifactsArchive(nil)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/gzip")
	w.Write(out)
}

func (s *Server) putArtifact(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookupJob(w, mux.Vars(r)["cookie"])
	if !ok {
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := j.AddArtifactToCurrentStep(mux.Vars(r)["name"], data); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getArtifact(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookupJob(w, mux.Vars(r)["cookie"])
	if !ok {
		return
	}
	data, err := j.GetArtifact(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, job.ErrNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

func (s *Server) setPXE(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	j, ok := s.lookupJob(w, vars["cookie"])
	if !ok {
		return
	}
	if err := j.SetPXE(vars["enable"] == "true"); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setKernelArgs(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	j, ok := s.lookupJob(w, vars["cookie"])
	if !ok {
		return
	}
	kargs, err := j.SetKernelArgs(vars["args"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, r, kargsResponse{Kargs: kargs})
}

// suiteLibs flattens a testsuite's per-testset library trees into the
// shape Testsuite.Archive expects, one single-file entry per library. A
// library name already taken by an earlier testset is skipped with a
// warning.
func suiteLibs(ts *testdef.Testsuite) map[string][]testdef.LibFile {
	out := map[string][]testdef.LibFile{}
	for _, set := range ts.Testsets {
		for name, data := range set.Libs {
			if _, dup := out[name]; dup {
				log.Warnf("api: testsuite %s: duplicate lib %q skipped", ts.Name, name)
				continue
			}
			out[name] = []testdef.LibFile{{Path: name, Data: data}}
		}
	}
	return out
}
