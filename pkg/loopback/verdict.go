package loopback

import (
	"errors"
	"fmt"
	"strings"
)

// Criterion names one pass/fail check of a scenario.
type Criterion string

const (
	CriterionReadiness Criterion = "readiness"
	CriterionTiming    Criterion = "timing"
	CriterionColor     Criterion = "color"
	CriterionAudio     Criterion = "audio"
)

// CriterionResult is the outcome of a single criterion.
type CriterionResult struct {
	Criterion Criterion `json:"criterion"`
	Passed    bool      `json:"passed"`
	Expected  string    `json:"expected"`
	Observed  string    `json:"observed"`
	Message   string    `json:"message,omitempty"`
}

// Verdict is the result of one scenario run.
// It fails if and only if at least one evaluated criterion failed.
type Verdict struct {
	Passed  bool              `json:"passed"`
	Results []CriterionResult `json:"results"`

	// Evidence holds the observations the results were judged on.
	Evidence Evidence `json:"evidence"`
}

func newVerdict() *Verdict {
	return &Verdict{Passed: true, Results: make([]CriterionResult, 0, 4)}
}

func (v *Verdict) add(r CriterionResult) {
	if !r.Passed {
		v.Passed = false
	}
	v.Results = append(v.Results, r)
}

// Result returns the result recorded for c, if c was evaluated.
func (v *Verdict) Result(c Criterion) (CriterionResult, bool) {
	for _, r := range v.Results {
		if r.Criterion == c {
			return r, true
		}
	}
	return CriterionResult{}, false
}

// Failures returns only the failed criterion results.
func (v *Verdict) Failures() []CriterionResult {
	failures := make([]CriterionResult, 0)
	for _, r := range v.Results {
		if !r.Passed {
			failures = append(failures, r)
		}
	}
	return failures
}

// Err returns nil for a passing verdict, otherwise one joined error with a
// line per failed criterion.
func (v *Verdict) Err() error {
	failures := v.Failures()
	if len(failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(failures))
	for _, f := range failures {
		errs = append(errs, fmt.Errorf("%s: %s", f.Criterion, f.Message))
	}
	return errors.Join(errs...)
}

// String returns "PASS" or "FAIL" followed by one line per failed criterion.
func (v *Verdict) String() string {
	if v.Passed {
		return "PASS"
	}
	var b strings.Builder
	b.WriteString("FAIL")
	for _, f := range v.Failures() {
		fmt.Fprintf(&b, "\n  %s: %s", f.Criterion, f.Message)
	}
	return b.String()
}
