// Package slot implements the process-wide slot-admission policy that
// caps concurrent paid transfers across every open C↔C session (§4.7).
package slot

// Counter reports how many C↔C sessions are presently streaming bytes.
// A peer registry satisfies this by re-scanning its live sessions on
// every call (see runtime.Registry.Count) rather than maintaining a
// cached tally, so a session whose transport is closed without
// decrementing anything cannot leave the count permanently wrong.
type Counter interface {
	InUse() int
}

// CounterFunc adapts a plain function to Counter.
type CounterFunc func() int

// InUse implements Counter.
func (f CounterFunc) InUse() int { return f() }

// Admitter decides whether a new slot-bearing transfer may begin,
// against a configured slot limit and a live Counter.
type Admitter struct {
	configured int
	counter    Counter
}

// NewAdmitter creates an Admitter capping concurrent transfers at
// configured, querying counter for the current in-use count.
func NewAdmitter(configured int, counter Counter) *Admitter {
	return &Admitter{configured: configured, counter: counter}
}

// InUse re-scans the counter. It may exceed Configured, since it counts
// every streaming session regardless of whether that session's
// transfer required a slot (§4.5.5, §4.7 — preserved intentionally).
func (a *Admitter) InUse() int {
	return a.counter.InUse()
}

// Free returns the number of slots currently available, clamped to
// zero when InUse has over-run Configured.
func (a *Admitter) Free() int {
	free := a.configured - a.InUse()
	if free < 0 {
		return 0
	}
	return free
}

// Configured returns the configured slot count.
func (a *Admitter) Configured() int {
	return a.configured
}

// Admit reports whether a new slot-bearing transfer may start right
// now. It performs a fresh InUse read, as required before admitting any
// slot-bearing transfer.
func (a *Admitter) Admit() bool {
	return a.InUse() < a.configured
}
