package market

// ClockKind selects one of the per-market monotonic clocks.
type ClockKind uint8

const (
	ClockPriceImpactDistribution ClockKind = iota
	ClockBorrowing
	ClockFunding

	clockKindCount
)

// NumClockKinds is the number of per-market clocks.
const NumClockKinds = int(clockKindCount)

func (k ClockKind) String() string {
	switch k {
	case ClockPriceImpactDistribution:
		return "PriceImpactDistribution"
	case ClockBorrowing:
		return "Borrowing"
	case ClockFunding:
		return "Funding"
	default:
		return "Unknown"
	}
}

// Valid reports whether k names a real clock.
func (k ClockKind) Valid() bool {
	return k < clockKindCount
}

// Clocks holds the last-tick unix timestamps. The engine never reads
// wall-clock time; now is always a versioned input.
type Clocks struct {
	last [clockKindCount]int64
}

// JustPassed returns the whole seconds since the clock's last tick and
// advances it to now. A zero (uninitialized) clock yields zero elapsed and is
// initialized. The clock never moves backwards.
func (c *Clocks) JustPassed(kind ClockKind, now int64) (int64, error) {
	if !kind.Valid() {
		return 0, ErrUnknownClockKind
	}
	last := c.last[kind]
	if last == 0 {
		c.last[kind] = now
		return 0, nil
	}
	if now <= last {
		return 0, nil
	}
	c.last[kind] = now
	return now - last, nil
}

// Peek returns the last tick without advancing.
func (c *Clocks) Peek(kind ClockKind) (int64, error) {
	if !kind.Valid() {
		return 0, ErrUnknownClockKind
	}
	return c.last[kind], nil
}

// set restores a clock during overlay commit.
func (c *Clocks) set(kind ClockKind, last int64) {
	c.last[kind] = last
}
