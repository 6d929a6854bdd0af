package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"reflect"
	"runtime"
	"runtime/trace"
	"syscall"
	"time"

	"github.com/encodeous/pbgp/perf"
	"github.com/encodeous/pbgp/state"
	"github.com/encodeous/tint"
	"github.com/goccy/go-yaml"
	slogmulti "github.com/samber/slog-multi"
)

func setupDebugging() func() {
	stop := func() {}
	if state.DBG_trace {
		f, err := os.Create("trace.out")
		if err != nil {
			log.Fatal(err)
		}
		err = trace.Start(f)
		if err != nil {
			return stop
		}
		stop = trace.Stop
		log.Println("Started tracing")
	}
	if state.DBG_debug {
		go func() {
			log.Println(http.ListenAndServe("0.0.0.0:6060", nil))
		}()
	}
	return stop
}

func ReadCentralConfig(centralPath string) (*state.CentralCfg, error) {
	var centralCfg state.CentralCfg
	file, err := os.ReadFile(centralPath)
	if err != nil {
		return nil, err
	}
	err = yaml.Unmarshal(file, &centralCfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", centralPath, err)
	}
	state.ExpandCentralConfig(&centralCfg)
	return &centralCfg, nil
}

func ReadNodeConfig(nodePath string) (*state.LocalCfg, error) {
	var nodeCfg state.LocalCfg
	file, err := os.ReadFile(nodePath)
	if err != nil {
		return nil, err
	}
	err = yaml.Unmarshal(file, &nodeCfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", nodePath, err)
	}
	return &nodeCfg, nil
}

// Bootstrap reads and validates the configs of one participant, then runs it until the fixpoint.
func Bootstrap(centralPath, nodePath, logPath string, verbose bool) (Outcome, error) {
	defer setupDebugging()()
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	centralCfg, err := ReadCentralConfig(centralPath)
	if err != nil {
		return Outcome{}, err
	}
	nodeCfg, err := ReadNodeConfig(nodePath)
	if err != nil {
		return Outcome{}, err
	}
	if logPath != "" {
		nodeCfg.LogPath = logPath
	}

	err = state.CentralConfigValidator(centralCfg)
	if err != nil {
		return Outcome{}, err
	}
	err = state.NetworkConfigValidator(centralCfg)
	if err != nil {
		return Outcome{}, err
	}
	err = state.LocalConfigValidator(nodeCfg, centralCfg)
	if err != nil {
		return Outcome{}, err
	}
	return Start(context.Background(), *centralCfg, *nodeCfg, level, nil, nil)
}

func newLogger(label string, logLevel slog.Level, logPath string) (*slog.Logger, error) {
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        logLevel,
			AddSource:    false,
			CustomPrefix: label,
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
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
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: logLevel}))
	}

	return slog.New(slogmulti.Fanout(handlers...)), nil
}

// Start runs one participant until its engine converges, its context ends, or a module fails.
func Start(parent context.Context, ccfg state.CentralCfg, lcfg state.LocalCfg, logLevel slog.Level, aux map[string]any, initState **state.State) (Outcome, error) {
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(context.Canceled)

	dispatch := make(chan func(env *state.State) error, 128)

	s := state.State{
		Modules: make(map[string]state.NyModule),
		Env: &state.Env{
			Context:         ctx,
			Cancel:          cancel,
			DispatchChannel: dispatch,
			CentralCfg:      ccfg,
			LocalCfg:        lcfg,
			AuxConfig:       aux,
		},
	}
	logger, err := newLogger(s.Label(), logLevel, lcfg.LogPath)
	if err != nil {
		return Outcome{}, err
	}
	s.Log = logger
	if initState != nil {
		*initState = &s
	}

	s.Log.Info("init modules")
	err = initModules(&s)
	if err != nil {
		Stop(&s)
		return Outcome{}, err
	}
	s.Log.Info("init modules complete")

	s.Log.Info("participant has been initialized. To gracefully exit, send SIGINT or Ctrl+C.", "session", s.Session, "n", s.N())

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)
	go func() {
		select {
		case <-c:
			s.Cancel(errors.New("received shutdown signal"))
		case <-ctx.Done():
			return
		}
	}()

	err = MainLoop(&s, dispatch)
	if err != nil {
		return Outcome{}, err
	}
	if cause := context.Cause(ctx); !errors.Is(cause, ErrConverged) {
		return Outcome{}, cause
	}
	p := Get[*BGPProcess](&s)
	return Outcome{Table: p.Table, Rounds: p.Engine.Rounds()}, nil
}

func initModules(s *state.State) error {
	var modules []state.NyModule
	modules = append(modules, &Trace{})
	modules = append(modules, &MpcPeer{})
	modules = append(modules, &BGPProcess{})

	for _, module := range modules {
		name := reflect.TypeOf(module).String()
		s.Modules[name] = module
		s.ModuleOrder = append(s.ModuleOrder, name)
		if err := module.Init(s); err != nil {
			return fmt.Errorf("init %s: %w", name, err)
		}
	}
	return nil
}

func MainLoop(s *state.State, dispatch <-chan func(*state.State) error) error {
	s.Log.Debug("started main loop")
	s.Started.Store(true)
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
			if elapsed > time.Millisecond*4 {
				s.Log.Warn("dispatch took a long time!", "fun", runtime.FuncForPC(reflect.ValueOf(fun).Pointer()).Name(), "elapsed", elapsed, "len", len(dispatch))
			}
		case <-s.Context.Done():
			goto endLoop
		}
	}
endLoop:
	if cause := context.Cause(s.Context); errors.Is(cause, ErrConverged) {
		s.Log.Info("stopped main loop", "reason", cause.Error())
	} else if cause != nil {
		s.Log.Error("stopped main loop", "reason", cause.Error())
	}
	Stop(s)
	return nil
}

func Stop(s *state.State) {
	if s.Stopping.Swap(true) {
		return // don't stop twice
	}
	s.Cancel(context.Canceled)
	s.Log.Info("cleaning up modules")
	for i := len(s.ModuleOrder) - 1; i >= 0; i-- {
		moduleName := s.ModuleOrder[i]
		err := s.Modules[moduleName].Cleanup(s)
		if err != nil {
			s.Log.Error("error occurred during Stop: ", "module", moduleName, "error", err)
		}
	}
	s.Log.Info("stopped")
}
