package report

import "github.com/flthibaud/rapidimg/internal/domain"

// Reporter matches pipeline.Reporter.
type Reporter interface {
	Report(outcome domain.Outcome)
}

// Multi forwards every outcome to each reporter in order. Nil entries are
// skipped.
type Multi []Reporter

func NewMulti(reporters ...Reporter) Multi {
	out := make(Multi, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m Multi) Report(outcome domain.Outcome) {
	for _, r := range m {
		r.Report(outcome)
	}
}
