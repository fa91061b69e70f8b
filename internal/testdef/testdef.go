// Package testdef models the hierarchical test definition: testcases are
// grouped into testsets, testsets are concatenated into testsuites, and
// testsuites are referenced by testplans alongside a host and a profile.
package testdef

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"time"
)

// DefaultTimeout is applied to a Testcase that does not specify one.
const DefaultTimeout = 60 * time.Second

// Testcase is immutable once loaded from its Origin.
type Testcase struct {
	Name          string        `yaml:"name" json:"name"`
	Filename      string        `yaml:"filename" json:"filename"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	ExpectFailure bool          `yaml:"expect_failure" json:"expect_failure"`
	Description   string        `yaml:"description" json:"description"`
	Dependencies  []string      `yaml:"dependencies" json:"dependencies"`
	Body          []byte        `yaml:"-" json:"-" xml:"-"`
	Deps          []byte        `yaml:"-" json:"-" xml:"-"` // newline-separated dependency file contents
}

// EffectiveTimeout returns Timeout, defaulting to DefaultTimeout if unset.
func (tc Testcase) EffectiveTimeout() time.Duration {
	if tc.Timeout <= 0 {
		return DefaultTimeout
	}
	return tc.Timeout
}

// Source returns the testcase's script body.
func (tc Testcase) Source() []byte { return tc.Body }

// Testset groups an ordered sequence of testcases plus libraries bundled
// into the archive under lib/<name>/.
type Testset struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description" json:"description"`
	Libs        map[string][]byte `yaml:"-" json:"-"` // libname -> tar-ready payload built by the caller
	Testcases   []Testcase        `yaml:"testcases" json:"testcases"`
}

// Testsuite flattens to an ordered sequence of testcases.
type Testsuite struct {
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description" json:"description"`
	Testsets    []Testset `yaml:"testsets" json:"testsets"`
}

// Flatten concatenates every testset's testcases in order. A testcase may
// legitimately appear more than once, at different ordinals.
func (ts Testsuite) Flatten() []Testcase {
	var out []Testcase
	for _, set := range ts.Testsets {
		out = append(out, set.Testcases...)
	}
	return out
}

// Timeout is the sum of every flattened testcase's timeout.
func (ts Testsuite) Timeout() time.Duration {
	var total time.Duration
	for _, tc := range ts.Flatten() {
		total += tc.EffectiveTimeout()
	}
	return total
}

// LibFile is an individual file inside a bundled library tree.
type LibFile struct {
	Path string // relative to lib/<libname>/
	Data []byte
}

// Archive produces the compressed tar described by spec.md §6.3:
//
//	testcases/<stepN>-<casefilename>
//	testcases/<stepN>-<casefilename>.deps
//	testcases/lib/<libname>/...
//
// libs maps a library name to its file tree. Being a map, it holds each
// name once: libraries from several testsets are merged, and duplicate
// names dropped, by the caller before Archive sees them, so the duplicate
// check below does not fire for them and warn is not called.
func (ts Testsuite) Archive(libs map[string][]LibFile, warn func(string)) ([]byte, error) {
	cases := ts.Flatten()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for i, tc := range cases {
		base := fmt.Sprintf("testcases/%d-%s", i, tc.Filename)
		if err := writeTarFile(tw, base, tc.Body); err != nil {
			return nil, err
		}
		if len(tc.Deps) > 0 {
			if err := writeTarFile(tw, base+".deps", tc.Deps); err != nil {
				return nil, err
			}
		}
	}

	seen := map[string]bool{}
	for name, files := range libs {
		if seen[name] {
			if warn != nil {
				warn(fmt.Sprintf("duplicate lib %q skipped", name))
			}
			continue
		}
		seen[name] = true
		for _, f := range files {
			path := fmt.Sprintf("testcases/lib/%s/%s", name, f.Path)
			if err := writeTarFile(tw, path, f.Data); err != nil {
				return nil, err
			}
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

func writeTarFile(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(data))}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}
