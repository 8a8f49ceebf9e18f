package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/bridge"
	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/hostenv"
	"github.com/wippyai/wasm-bridge/internal/demo"
	"github.com/wippyai/wasm-bridge/loader"
)

func main() {
	var (
		configFile  = flag.String("config", "", "TOML configuration file")
		guest       = flag.String("wasm", "", "Guest module: path, file:// or http(s):// URL")
		useDemo     = flag.Bool("demo", false, "Run the built-in demo guest")
		namespace   = flag.String("ns", "", "Bridge import namespace")
		frames      = flag.Int("frames", 0, "Frames to run in batch mode")
		interval    = flag.String("interval", "", "Frame interval, e.g. 16ms")
		logLevel    = flag.String("log", "", "Log level (debug, info, warn, error)")
		peekRange   = flag.String("peek", "", "Hex-dump guest memory offset:length after the run")
		list        = flag.Bool("list", false, "List imports and exports and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fail(err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "wasm":
			cfg.Guest = *guest
		case "demo":
			cfg.Demo = *useDemo
		case "ns":
			cfg.Namespace = *namespace
		case "frames":
			cfg.Frames.Count = *frames
		case "interval":
			cfg.Frames.Interval = *interval
		case "log":
			cfg.LogLevel = *logLevel
		case "peek":
			cfg.Peek = *peekRange
		}
	})

	if cfg.Guest == "" && !cfg.Demo {
		fmt.Fprintln(os.Stderr, "Usage: run -wasm <module> [-frames n] [-interval 16ms] [-config run.toml]")
		fmt.Fprintln(os.Stderr, "       run -demo [-i]")
		fmt.Fprintln(os.Stderr, "       run -wasm <module> -list")
		os.Exit(1)
	}

	if *interactive {
		err = runInteractive(cfg)
	} else {
		err = run(cfg, *list, os.Stdout)
	}
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func setLoggers(log *zap.Logger) {
	bridge.SetLogger(log)
	engine.SetLogger(log.Named("engine"))
	loader.SetLogger(log.Named("loader"))
	hostenv.SetLogger(log.Named("hostenv"))
}

// session is a loaded guest wired to a window.
type session struct {
	engine   *engine.Engine
	bridge   *bridge.Bridge
	window   *hostenv.Window
	instance *engine.Instance
}

func (c *config) source() loader.Source {
	if c.Demo {
		return loader.FromBytes(demo.Guest())
	}
	return loader.FromLocation(c.Guest)
}

func openSession(ctx context.Context, cfg *config, console io.Writer) (*session, error) {
	eng, err := engine.New(ctx, &engine.Config{
		MemoryLimitPages:   cfg.Engine.MemoryLimitPages,
		CloseOnContextDone: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	b := bridge.New(&bridge.Config{Namespace: cfg.Namespace, Reserved: cfg.Reserved})
	w := hostenv.NewWindow(hostenv.NewConsole(console))
	if err := hostenv.Install(b, w); err != nil {
		_ = eng.Close(ctx)
		return nil, fmt.Errorf("install host environment: %w", err)
	}

	l := loader.New(eng, &loader.Config{MaxSize: cfg.Loader.MaxSize})
	inst, err := l.Load(ctx, cfg.source(), b)
	if err != nil {
		_ = eng.Close(ctx)
		return nil, fmt.Errorf("load %s: %w", cfg.source(), err)
	}
	return &session{engine: eng, bridge: b, window: w, instance: inst}, nil
}

func (s *session) close(ctx context.Context) {
	s.window.Close(ctx)
	_ = s.instance.Close(ctx)
	_ = s.engine.Close(ctx)
}

func (s *session) summary() string {
	st := s.bridge.Closures().Stats()
	line := fmt.Sprintf("frames: %d  heap: %d live  closures: %d live, %d executing, %d destroyed",
		s.window.Loop.Frames(), s.bridge.Heap().Len(), st.Live, st.Executing, st.Destroyed)
	if mem := s.instance.Memory(); mem != nil {
		line += "  memory: " + memorySize(mem)
	}
	return line
}

func run(cfg *config, listOnly bool, out io.Writer) error {
	ctx := context.Background()

	log, err := cfg.logger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	setLoggers(log)

	if listOnly {
		return list(ctx, cfg, out)
	}

	every, err := cfg.interval()
	if err != nil {
		return err
	}

	s, err := openSession(ctx, cfg, out)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for i := 0; i < cfg.Frames.Count && s.window.Loop.Pending() > 0; i++ {
		<-ticker.C
		if err := s.window.RunFrame(ctx); err != nil {
			return fmt.Errorf("frame %d: %w", s.window.Loop.Frames(), err)
		}
	}

	fmt.Fprintln(out, s.summary())

	if cfg.Peek != "" {
		mem := s.instance.Memory()
		if mem == nil {
			return fmt.Errorf("peek: guest exports no memory")
		}
		dump, err := peek(mem, cfg.Peek)
		if err != nil {
			return err
		}
		fmt.Fprint(out, dump)
	}
	return nil
}

func list(ctx context.Context, cfg *config, out io.Writer) error {
	eng, err := engine.New(ctx, nil)
	if err != nil {
		return err
	}
	defer eng.Close(ctx)

	mod, err := loader.New(eng, &loader.Config{MaxSize: cfg.Loader.MaxSize}).Compile(ctx, cfg.source())
	if err != nil {
		return err
	}
	defer mod.Close(ctx)

	fmt.Fprintf(out, "Module: %s\n\nImports:\n", cfg.source())
	for _, imp := range mod.Imports() {
		fmt.Fprintf(out, "  %s\n", imp.Key())
	}
	fmt.Fprintf(out, "\nExports:\n")
	for _, name := range mod.Exports() {
		fmt.Fprintf(out, "  %s\n", name)
	}
	return nil
}
