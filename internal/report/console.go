package report

import (
	"fmt"
	"io"
	"sync"

	"github.com/flthibaud/rapidimg/internal/domain"
)

// Console prints one line per outcome. Successes go to out, failures to
// errOut with their failure kind.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
}

func NewConsole(out, errOut io.Writer) *Console {
	if errOut == nil {
		errOut = out
	}
	return &Console{out: out, errOut: errOut}
}

func (c *Console) Report(outcome domain.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !outcome.OK() {
		fmt.Fprintf(c.errOut, "FAIL %s: %s: %v\n", outcome.InputPath, domain.FailureKind(outcome.Err), outcome.Err)
		return
	}

	if outcome.ResizedPath != "" {
		fmt.Fprintf(c.out, "resized %s -> %s (%dx%d)\n", outcome.InputPath, outcome.ResizedPath, outcome.Width, outcome.Height)
	}
	if outcome.Stats == nil {
		fmt.Fprintf(c.out, "%s %s -> %s\n", outcome.Operation, outcome.InputPath, outcome.OutputPath)
		return
	}
	fmt.Fprintf(c.out, "%s %s -> %s: %s -> %s (saved %s)\n",
		outcome.Operation,
		outcome.InputPath,
		outcome.OutputPath,
		FormatSize(outcome.Stats.InputSize),
		FormatSize(outcome.Stats.OutputSize),
		FormatRatio(outcome.Stats.Ratio),
	)
}

// PrintSummary writes the closing line of a run.
func (c *Console) PrintSummary(s Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "%d item(s): %d succeeded, %d failed; %s -> %s",
		s.Items, s.Succeeded, s.Failed, FormatSize(s.InputBytes), FormatSize(s.OutputBytes))
	if s.InputBytes > 0 {
		fmt.Fprintf(c.out, " (saved %s)", FormatRatio(s.Ratio()))
	}
	fmt.Fprintln(c.out)
}
