package scripts

import (
	"strings"
	"sync"
)

// Phase selects the bindings and log tag of a script run.
type Phase int

const (
	PhasePre Phase = iota
	PhasePost
)

func (p Phase) tag() string {
	if p == PhasePre {
		return "[Pre-Log]"
	}
	return "[Log]"
}

func (p Phase) short() string {
	if p == PhasePre {
		return "Pre"
	}
	return "Post"
}

func (p Phase) String() string {
	if p == PhasePre {
		return "pre-request"
	}
	return "post-request"
}

// Output accumulates the user-visible log of one pipeline run, one entry per
// line.
type Output struct {
	mu    sync.Mutex
	lines []string
}

func (o *Output) Add(line string) {
	o.mu.Lock()
	o.lines = append(o.lines, line)
	o.mu.Unlock()
}

func (o *Output) Lines() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.lines...)
}

func (o *Output) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.lines)
}

func (o *Output) String() string {
	if o == nil {
		return ""
	}
	return strings.Join(o.Lines(), "\n")
}
