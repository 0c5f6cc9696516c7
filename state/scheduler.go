package state

import (
	"fmt"
	"time"
)

// Dispatch Dispatches the function to run on the main thread without waiting for it to complete
func (e *Env) Dispatch(fun func(*State) error) {
	defer func() {
		if r := recover(); r != nil {
			e.Cancel(fmt.Errorf("panic: %v", r))
		}
	}()
	e.DispatchChannel <- fun
}

// DispatchWait Dispatches the function to run on the main thread and wait for it to complete
func (e *Env) DispatchWait(fun func(*State) (any, error)) (any, error) {
	ret := make(chan Pair[any, error], 1)
	e.Dispatch(func(s *State) error {
		res, err := fun(s)
		ret <- Pair[any, error]{res, err}
		return err
	})
	select {
	case res := <-ret:
		return res.V1, res.V2
	case <-e.Context.Done():
		return nil, e.Context.Err()
	}
}

// ScheduleTask runs fun on the router's task after delay, measured on the router's clock
func (e *Env) ScheduleTask(fun func(*State) error, delay time.Duration) TimerHandle {
	return e.Clock.Schedule(delay, TimerTag{Kind: TaskTimer, Owner: e.Name, Interface: LocalInterface}, func(TimerTag) {
		e.run(fun)
	})
}

// RepeatTask runs fun every delay until the context is cancelled
func (e *Env) RepeatTask(fun func(*State) error, delay time.Duration) {
	var tick func(TimerTag)
	tag := TimerTag{Kind: TaskTimer, Owner: e.Name, Interface: LocalInterface}
	tick = func(TimerTag) {
		if e.Context.Err() != nil {
			return
		}
		e.run(fun)
		e.Clock.Schedule(delay, tag, tick)
	}
	e.Clock.Schedule(delay, tag, tick)
}

// run executes fun against the module state. Clock callbacks are already on the
// router's task, so the state is reached through the bound State.
func (e *Env) run(fun func(*State) error) {
	s := e.bound.Load()
	if s == nil {
		return
	}
	if err := fun(s); err != nil {
		e.Log.Error("error occurred during scheduled task", "error", err)
		e.Cancel(err)
	}
}

// Bind associates the Env with the State that scheduled tasks run against
func (s *State) Bind() {
	s.Env.bound.Store(s)
}
