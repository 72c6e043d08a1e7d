package diagnostics

import (
	"github.com/sirupsen/logrus"
)

type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusBlocked Status = "blocked"
	StatusWarning Status = "warning"
)

// Result is the outcome of one check, or of one device within the resolution check.
type Result struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`

	// Fatal results that did not pass make the whole diagnostic fail.
	Fatal bool `json:"fatal"`
}

func (r *Result) Passed() bool {
	return r.Status == StatusPassed
}

func (r *Result) AsLogFields() logrus.Fields {
	return logrus.Fields{
		"check":  r.Name,
		"status": r.Status,
		"detail": r.Detail,
	}
}

// Report holds check results in the order they ran.
type Report struct {
	Results []*Result `json:"results"`
}

func (r *Report) add(results ...*Result) {
	r.Results = append(r.Results, results...)
}

// Failed reports whether any fatal check failed or was blocked.
func (r *Report) Failed() bool {
	for _, result := range r.Results {
		if result.Fatal && !result.Passed() {
			return true
		}
	}

	return false
}

// Result returns the first result with the given name, or nil.
func (r *Report) Result(name string) *Result {
	for _, result := range r.Results {
		if result.Name == name {
			return result
		}
	}

	return nil
}

func (r *Report) Counts() map[Status]int {
	counts := map[Status]int{}
	for _, result := range r.Results {
		counts[result.Status]++
	}

	return counts
}
