package state

import (
	"container/heap"
	"fmt"
	"sync"
	"time"
)

type TimerKind uint8

const (
	KeepaliveTimer TimerKind = iota
	HoldDownTimer
	ConnectRetryTimer
	DeliveryTimer
	TaskTimer
)

func (k TimerKind) String() string {
	switch k {
	case KeepaliveTimer:
		return "keepalive"
	case HoldDownTimer:
		return "hold-down"
	case ConnectRetryTimer:
		return "connect-retry"
	case DeliveryTimer:
		return "delivery"
	case TaskTimer:
		return "task"
	}
	return fmt.Sprintf("timer(%d)", uint8(k))
}

// TimerTag identifies what a timer is for. It is handed back to the callback when the timer fires.
type TimerTag struct {
	Kind      TimerKind
	Owner     string
	Interface int
}

func (t TimerTag) String() string {
	return fmt.Sprintf("%s/%d:%s", t.Owner, t.Interface, t.Kind)
}

// TimerHandle is returned by Schedule. The zero handle never refers to a timer.
type TimerHandle uint64

// Clock is the timer service routers run on. Callbacks are executed on the router's cooperative task.
// Cancelling a handle that already fired or was already cancelled does nothing.
type Clock interface {
	Now() time.Duration
	Schedule(after time.Duration, tag TimerTag, fn func(TimerTag)) TimerHandle
	Cancel(h TimerHandle)
}

type virtualEvent struct {
	at     time.Duration
	handle TimerHandle
	tag    TimerTag
	fn     func(TimerTag)
	index  int
}

type eventQueue []*virtualEvent

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	// handles are allocated in increasing order, so equal deadlines fire in schedule order
	return q[i].handle < q[j].handle
}
func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *eventQueue) Push(x any) {
	ev := x.(*virtualEvent)
	ev.index = len(*q)
	*q = append(*q, ev)
}
func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.index = -1
	*q = old[:n-1]
	return ev
}

// VirtualClock is a discrete-event kernel. Time only moves when the owner calls Step, Advance or RunUntil,
// and every callback runs on the calling goroutine, one at a time.
type VirtualClock struct {
	mu    sync.Mutex
	now   time.Duration
	next  TimerHandle
	queue eventQueue
	live  map[TimerHandle]*virtualEvent
}

func NewVirtualClock() *VirtualClock {
	return &VirtualClock{
		live: make(map[TimerHandle]*virtualEvent),
	}
}

func (c *VirtualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *VirtualClock) Schedule(after time.Duration, tag TimerTag, fn func(TimerTag)) TimerHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	ev := &virtualEvent{
		at:     c.now + max(after, 0),
		handle: c.next,
		tag:    tag,
		fn:     fn,
	}
	heap.Push(&c.queue, ev)
	c.live[ev.handle] = ev
	return ev.handle
}

func (c *VirtualClock) Cancel(h TimerHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev, ok := c.live[h]
	if !ok {
		return
	}
	heap.Remove(&c.queue, ev.index)
	delete(c.live, h)
}

// pop removes the next event if it is due at or before limit
func (c *VirtualClock) pop(limit time.Duration) *virtualEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 || c.queue[0].at > limit {
		return nil
	}
	ev := heap.Pop(&c.queue).(*virtualEvent)
	delete(c.live, ev.handle)
	c.now = ev.at
	return ev
}

// Step fires the next pending event, returning false if there is none
func (c *VirtualClock) Step() bool {
	ev := c.pop(time.Duration(1<<63 - 1))
	if ev == nil {
		return false
	}
	ev.fn(ev.tag)
	return true
}

// RunUntil fires every event due at or before t, then moves the clock to t
func (c *VirtualClock) RunUntil(t time.Duration) int {
	fired := 0
	for {
		ev := c.pop(t)
		if ev == nil {
			break
		}
		ev.fn(ev.tag)
		fired++
	}
	c.mu.Lock()
	c.now = max(c.now, t)
	c.mu.Unlock()
	return fired
}

func (c *VirtualClock) Advance(d time.Duration) int {
	return c.RunUntil(c.Now() + d)
}

// Pending counts armed timers carrying exactly this tag
func (c *VirtualClock) Pending(tag TimerTag) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.queue {
		if ev.tag == tag {
			n++
		}
	}
	return n
}

func (c *VirtualClock) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// DispatchClock runs on wall-clock time. Fired timers are dispatched onto the Env's main loop.
type DispatchClock struct {
	env    *Env
	start  time.Time
	mu     sync.Mutex
	next   TimerHandle
	timers map[TimerHandle]*time.Timer
}

func NewDispatchClock(env *Env) *DispatchClock {
	return &DispatchClock{
		env:    env,
		start:  time.Now(),
		timers: make(map[TimerHandle]*time.Timer),
	}
}

func (c *DispatchClock) Now() time.Duration {
	return time.Since(c.start)
}

func (c *DispatchClock) Schedule(after time.Duration, tag TimerTag, fn func(TimerTag)) TimerHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	h := c.next
	c.timers[h] = time.AfterFunc(max(after, 0), func() {
		if c.env.Context.Err() != nil {
			return
		}
		c.env.Dispatch(func(s *State) error {
			// a Cancel that raced with the dispatch wins
			c.mu.Lock()
			_, ok := c.timers[h]
			delete(c.timers, h)
			c.mu.Unlock()
			if ok {
				fn(tag)
			}
			return nil
		})
	})
	return h
}

func (c *DispatchClock) Cancel(h TimerHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[h]; ok {
		t.Stop()
		delete(c.timers, h)
	}
}

// Stop cancels every outstanding timer
func (c *DispatchClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for h, t := range c.timers {
		t.Stop()
		delete(c.timers, h)
	}
}
