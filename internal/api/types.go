package api

import "github.com/fabiand/igor/internal/job"

// statusResponse is returned by every route whose only result is a
// lifecycle verb ("pending", "aborted", ...). A named struct (rather
// than a bare map) is required here: encoding/xml cannot marshal maps,
// and every response goes through the same json/xml/yaml negotiation.
type statusResponse struct {
	Status string `json:"status" xml:"status" yaml:"status"`
	Name   string `json:"name,omitempty" xml:"name,omitempty" yaml:"name,omitempty"`
}

type kargsResponse struct {
	Kargs string `json:"kargs" xml:"kargs" yaml:"kargs"`
}

type cookieJobResponse struct {
	Cookie string       `json:"cookie" xml:"cookie" yaml:"cookie"`
	Job    job.Snapshot `json:"job" xml:"job" yaml:"job"`
}
