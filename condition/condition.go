// Package condition implements the thresholds that end or rotate a capture.
package condition

import (
	"fmt"
	"time"
)

type Kind int

const (
	KindSize Kind = iota
	KindDuration
	KindRepeatCount
)

func (k Kind) String() string {
	switch k {
	case KindSize:
		return "size"
	case KindDuration:
		return "duration"
	case KindRepeatCount:
		return "repeat-count"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Condition is a latching threshold. Eval reports true once per crossing;
// after that it stays quiet until Reset.
type Condition struct {
	kind      Kind
	threshold int64
	duration  time.Duration
	now       func() time.Time
	deadline  time.Time
	fired     bool
	deleted   bool
}

// NewSize fires when the evaluated value reaches limit bytes.
func NewSize(limit int64) *Condition {
	return &Condition{kind: KindSize, threshold: limit}
}

// NewRepeatCount fires when the evaluated value reaches limit.
func NewRepeatCount(limit int64) *Condition {
	return &Condition{kind: KindRepeatCount, threshold: limit}
}

// NewDuration fires once d has elapsed on clock since creation or the last Reset.
// A nil clock means time.Now.
func NewDuration(d time.Duration, clock func() time.Time) *Condition {
	if clock == nil {
		clock = time.Now
	}
	c := &Condition{kind: KindDuration, duration: d, now: clock}
	c.deadline = clock().Add(d)
	return c
}

// Eval checks the condition against v. Duration conditions ignore v.
func (c *Condition) Eval(v int64) bool {
	if c == nil || c.deleted || c.fired {
		return false
	}
	var hit bool
	switch c.kind {
	case KindSize, KindRepeatCount:
		hit = v >= c.threshold
	case KindDuration:
		hit = !c.now().Before(c.deadline)
	}
	if hit {
		c.fired = true
	}
	return hit
}

// Reset re-arms the condition; a duration restarts from the current clock.
func (c *Condition) Reset() {
	if c == nil {
		return
	}
	c.fired = false
	if c.kind == KindDuration {
		c.deadline = c.now().Add(c.duration)
	}
}

// Delete disables the condition for good.
func (c *Condition) Delete() {
	if c == nil {
		return
	}
	c.deleted = true
}

func (c *Condition) String() string {
	if c.kind == KindDuration {
		return fmt.Sprintf("%v:%v", c.kind, c.duration)
	}
	return fmt.Sprintf("%v:%d", c.kind, c.threshold)
}
