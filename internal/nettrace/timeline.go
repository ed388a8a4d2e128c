// Package nettrace records where the time of one HTTP exchange went.
package nettrace

import (
	"sort"
	"time"
)

type PhaseKind string

const (
	PhaseDNS      PhaseKind = "dns"
	PhaseConnect  PhaseKind = "connect"
	PhaseTLS      PhaseKind = "tls"
	PhaseTTFB     PhaseKind = "ttfb"
	PhaseTransfer PhaseKind = "transfer"
	PhaseTotal    PhaseKind = "total"
)

// Order is the display order of phase kinds.
var Order = []PhaseKind{PhaseDNS, PhaseConnect, PhaseTLS, PhaseTTFB, PhaseTransfer}

type Phase struct {
	Kind     PhaseKind     `json:"kind"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
	Addr     string        `json:"addr,omitempty"`
	Reused   bool          `json:"reused,omitempty"`
}

type Timeline struct {
	Started   time.Time     `json:"started"`
	Completed time.Time     `json:"completed"`
	Duration  time.Duration `json:"duration"`
	Phases    []Phase       `json:"phases"`
}

func (tl *Timeline) Clone() *Timeline {
	if tl == nil {
		return nil
	}
	clone := *tl
	clone.Phases = append([]Phase(nil), tl.Phases...)
	return &clone
}

// Durations sums phases per kind; a redirect chain can resolve and connect
// more than once.
func (tl *Timeline) Durations() map[PhaseKind]time.Duration {
	if tl == nil {
		return nil
	}
	out := make(map[PhaseKind]time.Duration, len(tl.Phases)+1)
	for _, phase := range tl.Phases {
		if phase.Duration > 0 {
			out[phase.Kind] += phase.Duration
		}
	}
	out[PhaseTotal] = tl.Duration
	return out
}

// Reused reports whether the exchange rode on a pooled connection.
func (tl *Timeline) Reused() bool {
	if tl == nil {
		return false
	}
	for _, phase := range tl.Phases {
		if phase.Kind == PhaseConnect && phase.Reused {
			return true
		}
	}
	return false
}

// Sequential builds a timeline from back-to-back phase durations starting at
// start. Zero durations are skipped.
func Sequential(start time.Time, phases ...Phase) *Timeline {
	tl := &Timeline{Started: start}
	at := start
	for _, p := range phases {
		if p.Duration <= 0 {
			continue
		}
		p.Start = at
		p.End = at.Add(p.Duration)
		at = p.End
		tl.Phases = append(tl.Phases, p)
	}
	tl.Completed = at
	tl.Duration = at.Sub(start)
	return tl
}

func sortPhases(phases []Phase) {
	sort.SliceStable(phases, func(i, j int) bool {
		if phases[i].Start.Equal(phases[j].Start) {
			return phases[i].End.Before(phases[j].End)
		}
		return phases[i].Start.Before(phases[j].Start)
	})
}
