package reactor

import "time"

// timerEntry is what the wheel stores per armed timer. protoID is the
// TimerId the owning Protocol chose when it issued the Timer command;
// the wheel's own slot Token (the Slab key) is a purely internal handle
// the protocol never sees.
type timerEntry struct {
	owner   Token
	protoID TimerId
	rounds  int
	bucket  int
}

// TimerWheel is a hashed timing wheel: O(1) arm and cancel, bounded
// horizon per revolution, with stable slot tokens backing cancellation.
type TimerWheel struct {
	tick   time.Duration
	size   int
	slab   *Slab[timerEntry]
	bucket [][]Token
	cursor int
}

// NewTimerWheel builds a wheel with wheelSize buckets advanced every tick,
// with room for capacity simultaneously-armed timers.
func NewTimerWheel(tick time.Duration, wheelSize, capacity int) *TimerWheel {
	if tick <= 0 {
		tick = time.Millisecond
	}
	if wheelSize < 1 {
		wheelSize = 1
	}
	return &TimerWheel{
		tick:   tick,
		size:   wheelSize,
		slab:   NewSlab[timerEntry](0, capacity),
		bucket: make([][]Token, wheelSize),
	}
}

// Len reports the number of currently-armed timers.
func (w *TimerWheel) Len() int { return w.slab.Len() }

// Arm schedules owner to receive on_timer(protoID) after delay, rounded up
// to the nearest tick. It returns the internal slot Token used by Clear.
func (w *TimerWheel) Arm(owner Token, protoID TimerId, delay time.Duration) (Token, error) {
	ticks := int64(delay / w.tick)
	if delay%w.tick != 0 {
		ticks++
	}
	if ticks < 1 {
		ticks = 1
	}
	offset := int(ticks) % w.size
	// A delay of an exact multiple of size lands on the cursor's own
	// bucket, which Advance first reaches after one full revolution.
	rounds := (int(ticks) - 1) / w.size
	bucket := (w.cursor + offset) % w.size

	slot, err := w.slab.Insert(timerEntry{owner: owner, protoID: protoID, rounds: rounds, bucket: bucket})
	if err != nil {
		return 0, err
	}
	w.bucket[bucket] = append(w.bucket[bucket], slot)
	return slot, nil
}

// Clear cancels the timer at slot. It is idempotent: clearing an already
// cleared or fired slot is a no-op.
func (w *TimerWheel) Clear(slot Token) {
	e, ok := w.slab.Get(slot)
	if !ok {
		return
	}
	bucket := e.bucket
	list := w.bucket[bucket]
	for i, s := range list {
		if s == slot {
			w.bucket[bucket] = append(list[:i], list[i+1:]...)
			break
		}
	}
	w.slab.Remove(slot)
}

// Advance moves the wheel forward by exactly one tick and returns every
// timerEntry that fired as a result, owner/protoID intact. The cursor
// advances before a bucket is inspected, so an entry armed N ticks ahead
// of "now" fires on exactly the Nth subsequent call to Advance.
func (w *TimerWheel) Advance() []timerEntry {
	w.cursor = (w.cursor + 1) % w.size
	idx := w.cursor

	slots := w.bucket[idx]
	if len(slots) == 0 {
		return nil
	}
	w.bucket[idx] = nil

	var fired []timerEntry
	for _, slot := range slots {
		e, ok := w.slab.Get(slot)
		if !ok {
			continue
		}
		if e.rounds > 0 {
			e.rounds--
			w.bucket[idx] = append(w.bucket[idx], slot)
			continue
		}
		fired = append(fired, *e)
		w.slab.Remove(slot)
	}
	return fired
}

// Tick returns the wheel's configured tick duration, for callers driving
// Advance off a time.Ticker.
func (w *TimerWheel) Tick() time.Duration { return w.tick }
