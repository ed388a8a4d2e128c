package nettrace

import (
	"crypto/tls"
	"net/http/httptrace"
	"sync"
	"time"
)

type openPhase struct {
	start  time.Time
	addr   string
	reused bool
}

// Collector gathers phases from httptrace callbacks, which may fire on
// transport goroutines.
type Collector struct {
	mu       sync.Mutex
	started  time.Time
	finished time.Time
	phases   []Phase
	open     map[PhaseKind]*openPhase
	now      func() time.Time
}

func NewCollector() *Collector {
	return &Collector{open: make(map[PhaseKind]*openPhase), now: time.Now}
}

func (c *Collector) Begin(kind PhaseKind) {
	if kind == "" || kind == PhaseTotal {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.now()
	if c.started.IsZero() {
		c.started = ts
	}
	c.open[kind] = &openPhase{start: ts}
}

func (c *Collector) End(kind PhaseKind, err error) {
	if kind == "" || kind == PhaseTotal {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.now()
	state, ok := c.open[kind]
	if !ok {
		state = &openPhase{start: ts}
	}
	phase := Phase{
		Kind:     kind,
		Start:    state.start,
		End:      ts,
		Duration: ts.Sub(state.start),
		Addr:     state.addr,
		Reused:   state.reused,
	}
	if err != nil {
		phase.Err = err.Error()
	}
	c.phases = append(c.phases, phase)
	delete(c.open, kind)
	if ts.After(c.finished) {
		c.finished = ts
	}
}

func (c *Collector) annotate(kind PhaseKind, addr string, reused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state := c.open[kind]; state != nil {
		state.addr = addr
		state.reused = reused
	}
}

// Complete closes every phase still open, marking it incomplete.
func (c *Collector) Complete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.now()
	if ts.After(c.finished) {
		c.finished = ts
	}
	for kind, state := range c.open {
		c.phases = append(c.phases, Phase{
			Kind:     kind,
			Start:    state.start,
			End:      ts,
			Duration: ts.Sub(state.start),
			Addr:     state.addr,
			Reused:   state.reused,
			Err:      "incomplete",
		})
	}
	c.open = make(map[PhaseKind]*openPhase)
}

// Timeline returns nil when nothing was recorded.
func (c *Collector) Timeline() *Timeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.phases) == 0 && c.started.IsZero() {
		return nil
	}
	phases := append([]Phase(nil), c.phases...)
	sortPhases(phases)
	tl := &Timeline{Started: c.started, Completed: c.finished, Phases: phases}
	if !tl.Completed.Before(tl.Started) {
		tl.Duration = tl.Completed.Sub(tl.Started)
	}
	return tl
}

// ClientTrace wires c into net/http. The ttfb phase spans from the request
// being written to the first response byte; transfer is closed by the caller
// once the body has been read.
func (c *Collector) ClientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GetConn: func(string) {
			c.Begin(PhaseConnect)
		},
		DNSStart: func(httptrace.DNSStartInfo) {
			c.Begin(PhaseDNS)
		},
		DNSDone: func(info httptrace.DNSDoneInfo) {
			c.End(PhaseDNS, info.Err)
		},
		TLSHandshakeStart: func() {
			c.Begin(PhaseTLS)
		},
		TLSHandshakeDone: func(_ tls.ConnectionState, err error) {
			c.End(PhaseTLS, err)
		},
		GotConn: func(info httptrace.GotConnInfo) {
			addr := ""
			if info.Conn != nil {
				addr = info.Conn.RemoteAddr().String()
			}
			c.annotate(PhaseConnect, addr, info.Reused)
			c.End(PhaseConnect, nil)
		},
		WroteRequest: func(httptrace.WroteRequestInfo) {
			c.Begin(PhaseTTFB)
		},
		GotFirstResponseByte: func() {
			c.End(PhaseTTFB, nil)
			c.Begin(PhaseTransfer)
		},
	}
}
