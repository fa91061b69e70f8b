package api

import (
	"archive/tar"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fabiand/igor/internal/inventory"
	"github.com/fabiand/igor/internal/job"
)

func (s *Server) listProfiles(w http.ResponseWriter, r *http.Request) {
	items, err := s.Inv.Items(inventory.CategoryProfiles)
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

func (s *Server) listHosts(w http.ResponseWriter, r *http.Request) {
	items, err := s.Inv.Items(inventory.CategoryHosts)
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

func (s *Server) lookupProfile(w http.ResponseWriter, name string) (inventory.Profile, bool) {
	item, ok := s.Inv.Lookup(inventory.CategoryProfiles, name)
	if !ok {
		writeError(w, job.ErrNotFound)
		return nil, false
	}
	profile, ok := item.(inventory.Profile)
	if !ok {
		writeError(w, job.ErrNotFound)
		return nil, false
	}
	return profile, true
}

// createProfile accepts a tar bundle (kernel, initrd, kargs files) in the
// request body, the way the original Cobbler-facing profile importer did,
// and hands each file to the origin's ItemCreator as a property: kargs
// as its plain text, every other file base64-encoded, since
// inventory.ItemCreator.CreateItem only accepts string properties. Before creating anything it schema-validates that all three
// required members were present in the bundle, rejecting with 412 if not.
func (s *Server) createProfile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	props := map[string]string{}

	gz, err := gzip.NewReader(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			writeError(w, err)
			return
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			writeError(w, err)
			return
		}
		switch hdr.Name {
		case "kargs":
			props["kargs"] = string(data)
		default:
			props[hdr.Name] = base64.StdEncoding.EncodeToString(data)
		}
	}

	if err := validateProfileBundle(props); err != nil {
		writeError(w, fmt.Errorf("%w: %v", job.ErrPrecondition, err))
		return
	}

	item, err := s.Inv.CreateItem(inventory.CategoryProfiles, name, props)
	if err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, r, item)
}

func (s *Server) deleteProfile(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.lookupProfile(w, mux.Vars(r)["name"])
	if !ok {
		return
	}
	if err := profile.Delete(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getProfileKargs(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.lookupProfile(w, mux.Vars(r)["name"])
	if !ok {
		return
	}
	kargs, err := profile.Kargs(nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, r, kargsResponse{Kargs: kargs})
}

func (s *Server) setProfileKargs(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.lookupProfile(w, mux.Vars(r)["name"])
	if !ok {
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	kargs := string(data)
	result, err := profile.Kargs(&kargs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, r, kargsResponse{Kargs: result})
}
