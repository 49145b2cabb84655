package condition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time {
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.t = f.t.Add(d)
}

func TestSizeFiresOncePerCrossing(t *testing.T) {
	c := NewSize(100)
	assert.False(t, c.Eval(0))
	assert.False(t, c.Eval(99))
	assert.True(t, c.Eval(100))
	assert.False(t, c.Eval(150))
	assert.False(t, c.Eval(1000))

	c.Reset()
	assert.False(t, c.Eval(10))
	assert.True(t, c.Eval(120))
}

func TestRepeatCount(t *testing.T) {
	c := NewRepeatCount(3)
	var fired int
	for i := int64(0); i < 10; i++ {
		if c.Eval(i) {
			fired++
			assert.Equal(t, int64(3), i)
		}
	}
	assert.Equal(t, 1, fired)
}

func TestDurationUsesClock(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	c := NewDuration(2*time.Second, clock.Now)
	assert.False(t, c.Eval(0))
	clock.Advance(1999 * time.Millisecond)
	assert.False(t, c.Eval(0))
	clock.Advance(time.Millisecond)
	assert.True(t, c.Eval(0))
	assert.False(t, c.Eval(0))

	c.Reset()
	assert.False(t, c.Eval(0))
	clock.Advance(2 * time.Second)
	assert.True(t, c.Eval(0))
}

func TestDeleteAndNil(t *testing.T) {
	c := NewSize(1)
	c.Delete()
	assert.False(t, c.Eval(10))

	var none *Condition
	assert.False(t, none.Eval(10))
	none.Reset()
	none.Delete()
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "size:5", NewSize(5).String())
	assert.Equal(t, "repeat-count:2", NewRepeatCount(2).String())
	assert.Equal(t, "duration:3s", NewDuration(3*time.Second, nil).String())
}
