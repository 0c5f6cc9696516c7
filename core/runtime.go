package core

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path"
	"reflect"
	"runtime"
	"time"

	"github.com/encodeous/bgpsim/perf"
	"github.com/encodeous/bgpsim/state"
	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"
)

type Options struct {
	Router     state.RouterCfg
	Session    state.SessionCfg
	Interfaces []state.InterfaceCfg
	Transport  state.Transport
	// Clock defaults to a wall-clock DispatchClock
	Clock    state.Clock
	LogLevel slog.Level
	// LogOutput defaults to stderr
	LogOutput io.Writer
	Context   context.Context
}

// NewLogger builds the console logger for a router, fanned out to a file when logPath is set.
// When now is set, records carry the router's clock time instead of the wall clock.
func NewLogger(name string, level slog.Level, out io.Writer, logPath string, now func() time.Duration) (*slog.Logger, error) {
	replace := func(groups []string, attr slog.Attr) slog.Attr {
		if attr.Key == slog.TimeKey && len(groups) == 0 {
			if now == nil {
				return slog.Attr{}
			}
			return slog.Duration(slog.TimeKey, now())
		}
		return attr
	}
	if out == nil {
		out = os.Stderr
	}
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(out, &tint.Options{
			Level:        level,
			AddSource:    false,
			CustomPrefix: name,
			ReplaceAttr:  replace,
		}))

	if logPath != "" {
		err := os.MkdirAll(path.Dir(logPath), 0700)
		if err != nil {
			return nil, err
		}
		f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: level, ReplaceAttr: replace}))
	}

	return slog.New(slogmulti.Fanout(handlers...)), nil
}

// NewState prepares the state of one router without initializing any module
func NewState(opts Options) (*state.State, chan func(*state.State) error, error) {
	parent := opts.Context
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parent)
	dispatch := make(chan func(env *state.State) error, 128)

	s := &state.State{
		Modules: make(map[string]state.Module),
		Env: &state.Env{
			Context:         ctx,
			Cancel:          cancel,
			DispatchChannel: dispatch,
			RouterCfg:       opts.Router,
			Session:         opts.Session,
			Interfaces:      opts.Interfaces,
			Transport:       opts.Transport,
			Clock:           opts.Clock,
		},
	}
	if s.Clock == nil {
		s.Clock = state.NewDispatchClock(s.Env)
	}
	logger, err := NewLogger(opts.Router.Name, opts.LogLevel, opts.LogOutput, opts.Router.LogPath, s.Clock.Now)
	if err != nil {
		cancel(err)
		return nil, nil, err
	}
	s.Log = logger
	s.Bind()
	return s, dispatch, nil
}

func InitModules(s *state.State) error {
	var modules []state.Module
	modules = append(modules, &RouteTrace{})
	modules = append(modules, &Router{})

	for _, module := range modules {
		s.Modules[reflect.TypeOf(module).String()] = module
		if err := module.Init(s); err != nil {
			return err
		}
	}
	s.Started.Store(true)
	return nil
}

func MainLoop(s *state.State, dispatch <-chan func(*state.State) error) error {
	s.Log.Debug("started main loop")
	for {
		select {
		case fun := <-dispatch:
			if fun == nil {
				goto endLoop
			}
			start := time.Now()
			err := fun(s)
			if err != nil {
				s.Log.Error("error occurred during dispatch: ", "error", err)
				s.Cancel(err)
			}
			elapsed := time.Since(start)
			perf.DispatchLatency.Add(float64(elapsed.Microseconds()))
			if elapsed > state.SlowDispatch {
				s.Log.Warn("dispatch took a long time!", "fun", runtime.FuncForPC(reflect.ValueOf(fun).Pointer()).Name(), "elapsed", elapsed, "len", len(dispatch))
			}
		case <-s.Context.Done():
			goto endLoop
		}
	}
endLoop:
	s.Log.Info("stopped main loop", "reason", context.Cause(s.Context).Error())
	Stop(s)
	return nil
}

func Stop(s *state.State) {
	if s.Stopping.Swap(true) {
		return // don't stop twice
	}
	s.Cancel(context.Canceled)
	if s.DispatchChannel != nil {
		close(s.DispatchChannel)
	}
	if dc, ok := s.Clock.(*state.DispatchClock); ok {
		dc.Stop()
	}
	s.Log.Info("cleaning up modules")
	for moduleName, module := range s.Modules {
		err := module.Cleanup(s)
		if err != nil {
			s.Log.Error("error occurred during Stop: ", "module", moduleName, "error", err)
		}
	}
	s.Log.Info("stopped")
}
