// Package reports renders a Job's results as RST or JUnit XML. The
// original igord drove an XSLT stylesheet over its results document;
// that mechanism is out of scope here, but the two report routes
// themselves are not, so igord renders the same two formats natively
// with text/template.
package reports

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/fabiand/igor/internal/job"
)

// View adapts a job.Snapshot into the shape both templates below
// iterate over.
type View struct {
	Cookie    string
	Testsuite string
	Host      string
	Profile   string
	Result    string
	Runtime   time.Duration
	Steps     []job.StepResult
}

func newView(snap job.Snapshot) View {
	return View{
		Cookie:    snap.Cookie,
		Testsuite: snap.Testsuite,
		Host:      snap.Host,
		Profile:   snap.Profile,
		Result:    snap.Result,
		Runtime:   snap.Runtime,
		Steps:     snap.Results,
	}
}

var rstTemplate = template.Must(template.New("rst").Funcs(template.FuncMap{
	"repeat": repeat,
}).Parse(
	`{{.Testsuite}} -- {{.Cookie}}
{{repeat (len .Testsuite) "="}}{{repeat 4 "="}}{{repeat (len .Cookie) "="}}

:host: {{.Host}}
:profile: {{.Profile}}
:result: {{.Result}}
:runtime: {{.Runtime}}

{{range $i, $s := .Steps}}{{$i}}. {{$s.Testcase.Name}} -- {{if $s.IsPassed}}PASS{{else}}FAIL{{end}}{{if $s.Note}} ({{$s.Note}}){{end}}
{{end}}`))

var junitTemplate = template.Must(template.New("junit").Funcs(template.FuncMap{
	"escape":   escapeXML,
	"failures": countFailures,
	"seconds":  func(d time.Duration) float64 { return d.Seconds() },
}).Parse(
	`<?xml version="1.0" encoding="UTF-8"?>
<testsuite name="{{escape .Testsuite}}" tests="{{len .Steps}}" failures="{{failures .Steps}}" time="{{seconds .Runtime}}">
{{range .Steps}}  <testcase name="{{escape .Testcase.Name}}" time="{{seconds .Runtime}}">
{{if not .IsPassed}}    <failure message="{{escape .Note}}"></failure>
{{end}}  </testcase>
{{end}}</testsuite>
`))

func countFailures(steps []job.StepResult) int {
	n := 0
	for _, s := range steps {
		if !s.IsPassed {
			n++
		}
	}
	return n
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	for _, r := range s {
		switch r {
		case '&':
			buf.WriteString("&amp;")
		case '<':
			buf.WriteString("&lt;")
		case '>':
			buf.WriteString("&gt;")
		case '"':
			buf.WriteString("&quot;")
		default:
			buf.WriteRune(r)
		}
	}
	return buf.String()
}

func repeat(n int, s string) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}

// RST renders snap as a restructured-text report.
func RST(snap job.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := rstTemplate.Execute(&buf, newView(snap)); err != nil {
		return nil, fmt.Errorf("render rst report: %w", err)
	}
	return buf.Bytes(), nil
}

// JUnit renders snap as a JUnit-compatible XML report.
func JUnit(snap job.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := junitTemplate.Execute(&buf, newView(snap)); err != nil {
		return nil, fmt.Errorf("render junit report: %w", err)
	}
	return buf.Bytes(), nil
}
