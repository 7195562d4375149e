package report

import (
	"sync"
	"time"

	"github.com/flthibaud/rapidimg/internal/domain"
)

// Summary is the aggregate of a finished run.
type Summary struct {
	RunID       string         `json:"run_id,omitempty"`
	Items       int            `json:"items"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
	Failures    map[string]int `json:"failures,omitempty"`
	InputBytes  uint64         `json:"input_bytes"`
	OutputBytes uint64         `json:"output_bytes"`
	Elapsed     float64        `json:"elapsed_seconds"`
}

// Ratio is the fraction of input bytes saved across the items that carried
// stats, like domain.CompressionStats.Ratio. Zero when nothing was measured.
func (s Summary) Ratio() float64 {
	if s.InputBytes == 0 {
		return 0
	}
	return 1 - float64(s.OutputBytes)/float64(s.InputBytes)
}

// Tally counts outcomes as they are reported.
type Tally struct {
	mu      sync.Mutex
	summary Summary
	started time.Time
}

func NewTally() *Tally {
	return &Tally{started: time.Now()}
}

func (t *Tally) Report(outcome domain.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.summary.Items++
	if !outcome.OK() {
		t.summary.Failed++
		if t.summary.Failures == nil {
			t.summary.Failures = make(map[string]int)
		}
		t.summary.Failures[domain.FailureKind(outcome.Err)]++
		return
	}

	t.summary.Succeeded++
	if outcome.Stats != nil {
		t.summary.InputBytes += outcome.Stats.InputSize
		t.summary.OutputBytes += outcome.Stats.OutputSize
	}
}

func (t *Tally) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.summary
	if s.Failures != nil {
		s.Failures = make(map[string]int, len(t.summary.Failures))
		for k, v := range t.summary.Failures {
			s.Failures[k] = v
		}
	}
	s.Elapsed = time.Since(t.started).Seconds()
	return s
}
