package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/the-cubic-cat/sfera/internal/command"
	servernet "github.com/the-cubic-cat/sfera/internal/net"
	"github.com/the-cubic-cat/sfera/internal/net/intake"
	"github.com/the-cubic-cat/sfera/internal/net/ws"
	"github.com/the-cubic-cat/sfera/internal/observability"
	"github.com/the-cubic-cat/sfera/internal/physics"
	"github.com/the-cubic-cat/sfera/internal/render"
	"github.com/the-cubic-cat/sfera/internal/sim"
	"github.com/the-cubic-cat/sfera/internal/simtime"
	"github.com/the-cubic-cat/sfera/internal/telemetry"
	"github.com/the-cubic-cat/sfera/internal/tui"
	"github.com/the-cubic-cat/sfera/internal/world"
	"github.com/the-cubic-cat/sfera/logging"
	loggingSinks "github.com/the-cubic-cat/sfera/logging/sinks"
)

const (
	defaultAddr    = ":8080"
	defaultLogFile = "sfera.log"
	shutdownGrace  = 5 * time.Second
)

type Config struct {
	// Addr is the HTTP listen address; empty disables the HTTP surface.
	Addr string
	// Headless replaces the terminal UI with a line console on Input.
	Headless bool
	// ReadOnly refuses commands from the network.
	ReadOnly bool
	// Remote screens commands from network clients.
	Remote intake.Policy
	// Script runs once the physics loop is up.
	Script     string
	EmptyScene bool
	// BroadcastInterval throttles websocket frames.
	BroadcastInterval time.Duration

	Physics       physics.Config
	Render        render.Config
	Loop          sim.LoopConfig
	Logging       logging.Config
	Observability observability.Config

	Logger telemetry.Logger
	Input  io.Reader
	Output io.Writer
}

func DefaultConfig() Config {
	return Config{
		Addr:              defaultAddr,
		BroadcastInterval: 50 * time.Millisecond,
		Physics:           physics.DefaultConfig(),
		Render:            render.DefaultConfig(),
		Loop:              sim.DefaultLoopConfig(),
		Logging:           logging.DefaultConfig(),
		Observability:     observability.Default(),
		Remote:            intake.DefaultPolicy(),
	}
}

// ApplyEnv overrides cfg from the environment. Invalid values are logged
// and ignored.
func ApplyEnv(cfg Config, getenv func(string) string, logger telemetry.Logger) Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}

	parseTime := func(key string, into *simtime.Time) {
		raw := getenv(key)
		if raw == "" {
			return
		}
		value, err := simtime.Parse(raw)
		if err == nil && value <= 0 {
			err = errors.New("must be positive")
		}
		if err != nil {
			logger.Printf("invalid %s=%q: %v", key, raw, err)
			return
		}
		*into = value
	}
	parseTime("SFERA_TIMESTEP", &cfg.Physics.Timestep)
	parseTime("SFERA_RUNAHEAD", &cfg.Physics.Runahead)

	if raw := getenv("SFERA_MAX_ITERATIONS"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err == nil && value <= 0 {
			err = errors.New("must be positive")
		}
		if err == nil {
			cfg.Physics.MaxCollisionIterations = value
		} else {
			logger.Printf("invalid SFERA_MAX_ITERATIONS=%q: %v", raw, err)
		}
	}
	if raw := getenv("SFERA_MARGIN"); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err == nil && value < 0 {
			err = errors.New("must not be negative")
		}
		if err == nil {
			cfg.Physics.CollisionErrMargin = value
		} else {
			logger.Printf("invalid SFERA_MARGIN=%q: %v", raw, err)
		}
	}
	if raw, ok := lookup(getenv, "SFERA_ADDR"); ok {
		cfg.Addr = raw
	}
	if raw := getenv("SFERA_LOG_SINKS"); raw != "" {
		var sinks []string
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			switch name {
			case "":
			case logging.SinkConsole, logging.SinkJSON, logging.SinkPhysics:
				sinks = append(sinks, name)
			default:
				logger.Printf("invalid SFERA_LOG_SINKS entry %q", name)
			}
		}
		cfg.Logging.EnabledSinks = sinks
	}
	if raw := getenv("SFERA_LOG_LEVEL"); raw != "" {
		if level, ok := logging.ParseSeverity(strings.ToLower(raw)); ok {
			cfg.Logging.MinimumSeverity = level
		} else {
			logger.Printf("invalid SFERA_LOG_LEVEL=%q", raw)
		}
	}
	if raw := getenv("ENABLE_PPROF_TRACE"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.Observability.EnablePprofTrace = value
		} else {
			logger.Printf("invalid ENABLE_PPROF_TRACE=%q: %v", raw, err)
		}
	}
	return cfg
}

// lookup reports whether key is set; "-" reads as an explicit empty value.
func lookup(getenv func(string) string, key string) (string, bool) {
	raw := getenv(key)
	if raw == "" {
		return "", false
	}
	if raw == "-" {
		return "", true
	}
	return raw, true
}

func Run(ctx context.Context, cfg Config) error {
	if cfg.Input == nil {
		cfg.Input = os.Stdin
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	if !cfg.Headless && cfg.Logging.Console.FilePath == "" {
		cfg.Logging.Console.FilePath = defaultLogFile
	}

	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		if cfg.Headless {
			telemetryLogger = telemetry.WrapLogger(log.Default())
		} else {
			f, err := os.OpenFile(cfg.Logging.Console.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("failed to open log file: %w", err)
			}
			defer f.Close()
			telemetryLogger = telemetry.WrapLogger(log.New(f, "", log.LstdFlags))
		}
	}

	namedSinks, err := buildSinks(cfg)
	if err != nil {
		return err
	}
	router, err := logging.NewRouter(logging.SystemClock{}, cfg.Logging, namedSinks)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	metrics := &logging.Metrics{}
	metricsAdapter := telemetry.WrapMetrics(metrics)

	w := world.New()
	if !cfg.EmptyScene {
		if err := DefaultScene(w); err != nil {
			return fmt.Errorf("failed to build scene: %w", err)
		}
	}

	engine := physics.NewEngine(w, cfg.Physics, physics.Deps{
		Logger:    telemetryLogger,
		Publisher: router,
		Metrics:   metricsAdapter,
	})
	window := render.NewWindow(w, cfg.Render, logging.SystemClock{}, router)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	interp := command.New(command.Context{
		Physics:   engine,
		Window:    window,
		Stop:      cancel,
		Logger:    telemetryLogger,
		Publisher: router,
	})
	loop := sim.NewLoop(engine, interp, window.Time, cfg.Loop, sim.LoopHooks{
		OnQueueWarning: func(length int) {
			telemetryLogger.Printf("[backpressure] command queue length=%d", length)
		},
	}, sim.Deps{
		Logger:    telemetryLogger,
		Metrics:   metricsAdapter,
		Publisher: router,
	})

	hub := ws.NewHub(ws.HubConfig{
		MinInterval: cfg.BroadcastInterval,
		Logger:      telemetryLogger,
		Metrics:     metricsAdapter,
		Publisher:   router,
	})
	defer hub.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx)
	})

	frameSinks := []render.FrameSink{hub}
	if cfg.Headless {
		go runConsole(gctx, cfg.Input, cfg.Output, loop)
	} else {
		program := tea.NewProgram(tui.New(window, loop),
			tea.WithContext(gctx),
			tea.WithInput(cfg.Input),
			tea.WithOutput(cfg.Output),
			tea.WithAltScreen(),
		)
		frameSinks = append(frameSinks, tui.NewSink(program))
		g.Go(func() error {
			_, err := program.Run()
			cancel()
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("terminal ui: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return window.Loop(gctx, frameSinks...)
	})

	if cfg.Addr != "" {
		handler := servernet.NewHTTPHandler(servernet.HTTPHandlerConfig{
			Hub:           hub,
			Submitter:     intake.Gate(loop, cfg.Remote),
			ReadOnly:      cfg.ReadOnly,
			Engine:        engine,
			Window:        window,
			Metrics:       metrics,
			Router:        router,
			Logger:        telemetryLogger,
			Observability: cfg.Observability,
		})
		srv := &http.Server{Addr: cfg.Addr, Handler: handler}
		telemetryLogger.Printf("server listening on %s", srv.Addr)

		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if cfg.Script != "" {
		g.Go(func() error {
			if _, err := loop.Submit(gctx, sim.SourceScript, "script "+cfg.Script); err != nil && gctx.Err() == nil {
				telemetryLogger.Printf("startup script %s failed: %v", cfg.Script, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if engine.IsLoggingKineticEnergy() {
		if err := engine.StopLoggingKineticEnergy(); err != nil {
			telemetryLogger.Printf("failed to close energy log: %v", err)
		}
	}
	return nil
}

func buildSinks(cfg Config) ([]logging.NamedSink, error) {
	var sinks []logging.NamedSink
	fail := func(err error) ([]logging.NamedSink, error) {
		for _, named := range sinks {
			named.Sink.Close(context.Background())
		}
		return nil, err
	}
	if cfg.Logging.HasSink(logging.SinkConsole) {
		if path := cfg.Logging.Console.FilePath; path != "" {
			sink, err := loggingSinks.NewConsoleFileSink(path, cfg.Logging.Console)
			if err != nil {
				return fail(err)
			}
			sinks = append(sinks, logging.NamedSink{Name: logging.SinkConsole, Sink: sink})
		} else {
			sinks = append(sinks, logging.NamedSink{Name: logging.SinkConsole, Sink: loggingSinks.NewConsoleSink(cfg.Output, cfg.Logging.Console)})
		}
	}
	files := []struct {
		name string
		file logging.FileConfig
	}{
		{logging.SinkJSON, cfg.Logging.JSON},
		{logging.SinkPhysics, cfg.Logging.Physics},
	}
	for _, f := range files {
		if !cfg.Logging.HasSink(f.name) {
			continue
		}
		sink, err := loggingSinks.NewJSONFile(f.file.FilePath, f.file.FlushInterval)
		if err != nil {
			return fail(fmt.Errorf("%s sink: %w", f.name, err))
		}
		sinks = append(sinks, logging.NamedSink{Name: f.name, Sink: sink})
	}
	return sinks, nil
}

// runConsole feeds lines from r to the loop and prints each reply. It
// returns at EOF; the process keeps running until quit or cancellation.
func runConsole(ctx context.Context, r io.Reader, out io.Writer, loop *sim.Loop) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		reply, err := loop.Submit(ctx, sim.SourceConsole, line)
		switch {
		case err != nil:
			fmt.Fprintf(out, "error: %v\n", err)
		case reply != "":
			fmt.Fprintln(out, reply)
		}
		if ctx.Err() != nil {
			return
		}
	}
}
