package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/encodeous/bgpsim/core"
	"github.com/encodeous/bgpsim/netsim"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation",
	Long: `Runs every router in the config until the configured duration has elapsed.
By default time is simulated and the run completes as fast as possible. With --realtime, routers run on the wall clock.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		level := slog.LevelInfo
		if ok, _ := cmd.Flags().GetBool("verbose"); ok {
			level = slog.LevelDebug
		}
		realtime, _ := cmd.Flags().GetBool("realtime")
		duration, _ := cmd.Flags().GetDuration("for")
		if duration == 0 {
			duration = cfg.Duration
		}
		if duration <= 0 {
			return errors.New("no duration, set duration in the config or pass --for")
		}
		if logDir, _ := cmd.Flags().GetString("log-dir"); logDir != "" {
			for i := range cfg.Routers {
				if cfg.Routers[i].LogPath == "" {
					cfg.Routers[i].LogPath = fmt.Sprintf("%s/%s.log", logDir, cfg.Routers[i].Name)
				}
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if addr, _ := cmd.Flags().GetString("metrics"); addr != "" {
			srv := &http.Server{Addr: addr}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("metrics server failed", "error", err)
				}
			}()
			defer srv.Close()
		}

		sim, err := netsim.New(cfg, netsim.Options{
			Realtime:  realtime,
			LogLevel:  level,
			LogOutput: os.Stderr,
			Context:   ctx,
		})
		if err != nil {
			return err
		}
		if err = sim.Start(); err != nil {
			sim.Stop()
			return err
		}
		defer sim.Stop()

		if trace, _ := cmd.Flags().GetBool("trace"); trace {
			if err = traceChanges(sim); err != nil {
				return err
			}
		}

		sim.Log.Info("simulation started", "routers", len(cfg.Routers), "duration", duration, "realtime", realtime)
		start := time.Now()
		fired, err := sim.Run(duration)
		if err != nil {
			return err
		}
		sim.Log.Info("simulation finished", "events", fired, "elapsed", time.Since(start))

		if dump, _ := cmd.Flags().GetBool("dump"); dump {
			if err = dumpTables(sim); err != nil {
				return err
			}
		}
		return report(sim)
	},
	GroupID: "sim",
}

// traceChanges prints every main table change as it happens
func traceChanges(sim *netsim.Simulation) error {
	for _, name := range sim.Routers() {
		err := sim.Inspect(name, func(r *core.Router) error {
			trace := core.Get[*core.RouteTrace](r.State)
			ch := make(chan any, 128)
			trace.Register(ch)
			go func() {
				for change := range ch {
					fmt.Println(change.(core.RouteChange).String())
				}
			}()
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func dumpTables(sim *netsim.Simulation) error {
	for _, name := range sim.Routers() {
		err := sim.Inspect(name, func(r *core.Router) error {
			fmt.Println(r.Inspect())
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// report prints the address space each router cannot reach
func report(sim *netsim.Simulation) error {
	converged := true
	for _, name := range sim.Routers() {
		missing, err := sim.Unreachable(name)
		if err != nil {
			return err
		}
		if len(missing) != 0 {
			converged = false
			fmt.Printf("%s cannot reach %v\n", name, missing)
		}
	}
	if converged {
		fmt.Println("every router reaches every originated prefix")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().Duration("for", 0, "how long to run, overrides the config duration")
	runCmd.Flags().Bool("realtime", false, "run on the wall clock instead of simulated time")
	runCmd.Flags().BoolP("dump", "d", false, "print every routing table when the run ends")
	runCmd.Flags().BoolP("trace", "t", false, "print main table changes as they happen")
	runCmd.Flags().String("log-dir", "", "also write each router's log to <dir>/<name>.log")
	runCmd.Flags().StringP("metrics", "m", "", "serve expvar and /debug/metrics on this address")
}
