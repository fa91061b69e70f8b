package api

import (
	"net/http"
	"text/template"

	"github.com/gorilla/mux"

	"github.com/fabiand/igor/pkg/log"
)

// bootstrapTemplate is the script a booted guest fetches to begin
// reporting: it learns its cookie, where to fetch the test archive, and
// how to post step results back, per spec.md §4.7's callback contract.
var bootstrapTemplate = template.Must(template.New("bootstrap").Parse(`#!/bin/sh
set -e
IGOR_COOKIE="{{.Cookie}}"
IGOR_BASE_URL="{{.BaseURL}}"
IGOR_TESTSUITE="{{.Testsuite}}"
IGOR_CURRENT_STEP="{{.CurrentStep}}"

echo "fetching testsuite $IGOR_TESTSUITE for $IGOR_COOKIE from $IGOR_BASE_URL"
curl -sSf "$IGOR_BASE_URL/jobs/$IGOR_COOKIE/testsuite" -o /tmp/igor-testsuite.tar.gz
mkdir -p /tmp/igor-testsuite
tar -xzf /tmp/igor-testsuite.tar.gz -C /tmp/igor-testsuite
exec /tmp/igor-testsuite/run.sh "$IGOR_BASE_URL" "$IGOR_COOKIE" "$IGOR_CURRENT_STEP"
`))

// bootstrapScript serves the script, disabling PXE on the job's host as a
// side effect so that a reboot mid-run doesn't re-enter the installer.
func (s *Server) bootstrapScript(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookupJob(w, mux.Vars(r)["cookie"])
	if !ok {
		return
	}

	if err := j.SetPXE(false); err != nil {
		writeError(w, err)
		return
	}

	view := struct {
		Cookie      string
		BaseURL     string
		Testsuite   string
		CurrentStep int
	}{
		Cookie:      j.Cookie,
		BaseURL:     s.BaseURL,
		Testsuite:   j.Testsuite.Name,
		CurrentStep: j.CurrentStep(),
	}

	w.Header().Set("Content-Type", "text/x-shellscript")
	if err := bootstrapTemplate.Execute(w, view); err != nil {
		log.Errorf("api: render bootstrap script for %s: %v", j.Cookie, err)
	}
}
