// Package session manages the per-job scratch directory: a private
// artifact store that is created on job submission and torn down once
// the job has ended.
package session

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/fabiand/igor/pkg/log"
)

// ErrInvalidName is returned by AddArtifact/GetArtifact when name escapes
// the session directory.
var ErrInvalidName = errors.New("artifact name must not contain path separators")

// dirMode allows traversal by other local users: a booted guest may fetch
// the testsuite archive or post artifacts back as a uid unrelated to the
// one igord runs as.
const (
	dirMode  os.FileMode = 0o711
	fileMode os.FileMode = 0o644
)

// Session is a scoped, on-disk scratch area for one job.
type Session struct {
	Cookie string
	Path   string // <root>/<random>-<cookie>
}

// New creates a fresh session directory under root, named
// "<random>-<cookie>" so that directory listings don't leak cookie
// ordering.
func New(root, cookie string) (*Session, error) {
	dirName := fmt.Sprintf("%s-%s", uuid.NewString()[:8], cookie)
	path := filepath.Join(root, dirName)

	if err := os.MkdirAll(filepath.Join(path, "artifacts"), dirMode); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	// MkdirAll applies dirMode only to leaf dirs it creates under certain
	// umasks; make sure both levels are actually traversable.
	os.Chmod(path, dirMode)
	os.Chmod(filepath.Join(path, "artifacts"), dirMode)

	return &Session{Cookie: cookie, Path: path}, nil
}

func (s *Session) artifactsDir() string {
	return filepath.Join(s.Path, "artifacts")
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return ErrInvalidName
	}
	return nil
}

// AddArtifact writes data under the session's artifacts directory.
func (s *Session) AddArtifact(name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	path := filepath.Join(s.artifactsDir(), name)
	return os.WriteFile(path, data, fileMode)
}

// GetArtifact reads a previously-added artifact.
func (s *Session) GetArtifact(name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(s.artifactsDir(), name))
}

// ListArtifacts returns artifact names in the session, sorted.
func (s *Session) ListArtifacts() ([]string, error) {
	entries, err := os.ReadDir(s.artifactsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ArchiveArtifacts returns a gzip-compressed tar of the selected
// artifacts. An empty selection archives everything.
//
// spec.md calls for a bzip2 tarball; no bzip2 *encoder* exists anywhere
// in the library corpus this codebase draws on (Go's stdlib compress/bzip2
// is decode-only), so igord follows its own archive precedent elsewhere
// in the stack and gzips instead.
func (s *Session) ArchiveArtifacts(selection []string) ([]byte, error) {
	names := selection
	if len(names) == 0 {
		var err error
		names, err = s.ListArtifacts()
		if err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, name := range names {
		data, err := s.GetArtifact(name)
		if err != nil {
			return nil, fmt.Errorf("archive artifact %q: %w", name, err)
		}
		hdr := &tar.Header{
			Name: name,
			Mode: int64(fileMode),
			Size: int64(len(data)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write(data); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RemoveArtifacts best-effort deletes every artifact, logging but never
// aborting on partial failure, then removes the (hopefully empty)
// directory tree, warning if something remains.
func (s *Session) RemoveArtifacts() {
	names, err := s.ListArtifacts()
	if err != nil {
		log.Warnf("session %s: list artifacts for removal: %v", s.Cookie, err)
	}
	for _, name := range names {
		if err := os.Remove(filepath.Join(s.artifactsDir(), name)); err != nil {
			log.Warnf("session %s: remove artifact %q: %v", s.Cookie, name, err)
		}
	}
	if err := os.Remove(s.artifactsDir()); err != nil && !os.IsNotExist(err) {
		log.Warnf("session %s: artifacts directory not empty after cleanup: %v", s.Cookie, err)
	}
}

// Remove tears down the session directory entirely. Only legal after the
// owning job has ended.
func (s *Session) Remove() error {
	s.RemoveArtifacts()
	if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
		log.Warnf("session %s: directory not empty after cleanup: %v", s.Cookie, err)
		return err
	}
	return nil
}

// CopyFrom writes all of r into artifact name, for HTTP handlers that
// receive artifact bytes as a stream rather than a slice.
func (s *Session) CopyFrom(name string, r io.Reader) error {
	if err := validateName(name); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(s.artifactsDir(), name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, r)
	return err
}
