package room

import "time"

// Stopper cancels a scheduled task. *time.Timer satisfies it.
type Stopper interface {
	Stop() bool
}

// Scheduler runs f once after d. The default uses time.AfterFunc.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Stopper
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// timerSlot holds at most one scheduled task. Arming always cancels the
// previous task first, and every task carries the generation it was armed
// with so a callback that lost the race with a cancel can detect it.
type timerSlot struct {
	task Stopper
	gen  uint64
}

func (t *timerSlot) cancel() {
	if t.task != nil {
		t.task.Stop()
		t.task = nil
	}
	t.gen++
}

func (t *timerSlot) arm(s Scheduler, d time.Duration, fire func(gen uint64)) {
	t.cancel()
	gen := t.gen
	t.task = s.AfterFunc(d, func() { fire(gen) })
}

// claim reports whether gen is the live task and, if so, consumes it.
func (t *timerSlot) claim(gen uint64) bool {
	if t.task == nil || t.gen != gen {
		return false
	}
	t.task = nil
	t.gen++
	return true
}

func (t *timerSlot) armed() bool { return t.task != nil }
