// kmhook - global keyboard and mouse hook
// Prints every input event and runs hotkey bindings from the config file.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"golang.org/x/term"

	"kmhook/internal/backend"
	"kmhook/internal/backend/fake"
	"kmhook/internal/config"
	"kmhook/internal/engine"
	"kmhook/internal/event"
	"kmhook/internal/hotkey"
	"kmhook/internal/tray"
)

var (
	version    = "0.1.0"
	configPath = flag.String("config", "", "Path to the YAML config (default: $KMHOOK_CONFIG or the user config dir)")
	showVer    = flag.Bool("version", false, "Show version")
	showTray   = flag.Bool("tray", false, "Show a tray icon with a Quit item")
	dryRun     = flag.Bool("dry-run", false, "Use an in-memory backend fed with chords read from stdin")
	jsonOut    = flag.Bool("json", false, "Print events as JSON lines (default when stdout is not a terminal)")
	listKeys   = flag.Bool("keys", false, "List the key names accepted in hotkeys")
	bindFlag   = flag.String("bind", "", "Add or replace a binding in the config file, as HOTKEY=ACTION, and exit")
	unbindFlag = flag.String("unbind", "", "Remove the binding for HOTKEY from the config file and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("kmhook version %s\n", version)
		return
	}
	if *listKeys {
		for _, c := range event.Codes() {
			fmt.Println(c)
		}
		return
	}

	cfgMgr, err := config.NewManager(*configPath)
	if err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}
	if err := cfgMgr.Load(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *bindFlag != "" || *unbindFlag != "" {
		if err := editBindings(cfgMgr, *bindFlag, *unbindFlag); err != nil {
			log.Fatalf("Failed to update bindings: %v", err)
		}
		return
	}

	cfg := cfgMgr.Get()
	explicitJSON := false
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "json":
			explicitJSON = true
		case "tray":
			cfg.General.Tray = *showTray
		}
	})
	switch {
	case explicitJSON:
		cfg.General.JSON = *jsonOut
	case !cfg.General.JSON:
		cfg.General.JSON = !term.IsTerminal(int(os.Stdout.Fd()))
	}

	os.Exit(runService(cfgMgr))
}

func newLogger(g config.GeneralConfig) *slog.Logger {
	lvl, _ := g.SlogLevel()
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func runService(cfgMgr *config.Manager) int {
	cfg := cfgMgr.Get()
	logger := newLogger(cfg.General)

	var b backend.Backend
	var dry *fake.Backend
	if *dryRun {
		dry = fake.New()
		b = dry
	} else {
		opts := []backend.Option{backend.WithLogger(logger)}
		if cfg.General.DeviceDir != "" {
			opts = append(opts, backend.WithDeviceDir(cfg.General.DeviceDir))
		}
		b = backend.New(opts...)
	}

	eng := engine.New(b,
		engine.WithQueueSize(cfg.General.QueueSize),
		engine.WithLogger(logger),
	)

	out := &printer{w: os.Stdout, json: cfg.General.JSON}
	printing := newPrintSwitch(eng, printMask(cfg.General.Print), out.print)
	printing.set(true)

	bind := newBinder(eng)
	refresh := func() {
		for _, err := range bind.apply(cfgMgr.Get().Bindings) {
			log.Printf("Warning: %v", err)
		}
	}
	refresh()
	cfgMgr.RegisterChangeCallback(refresh)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cfgMgr.Watch(ctx); err != nil {
		log.Printf("Warning: config reload disabled: %v", err)
	}

	if err := eng.Start(ctx); err != nil {
		log.Printf("Failed to start %s hook: %v", b.Name(), err)
		if errors.Is(err, backend.ErrPermissionDenied) {
			log.Println(permissionHint())
		}
		return 1
	}
	log.Printf("kmhook running on %s (session %s). Press Ctrl+C to stop.", b.Name(), eng.Session())

	go bind.runSender(ctx)
	if dry != nil {
		go feedChords(os.Stdin, dry)
	}

	var t *tray.Tray
	if cfg.General.Tray {
		t = tray.New("kmhook", "kmhook input hook")
		t.SetStatus(fmt.Sprintf("%s (%s)", eng.State(), b.Name()))
		var printItem int
		printItem = t.AddCheckboxItem("Print events", printing.enabled(), func() {
			t.SetItemChecked(printItem, printing.toggle())
		})
		t.AddSeparator()
		t.AddMenuItem("Quit", func() { t.Stop() })
	}

	go func() {
		select {
		case <-ctx.Done():
			log.Println("Shutting down...")
			_ = eng.Stop()
		case <-eng.Done():
		}
		if t != nil {
			t.Stop()
		}
	}()

	if t != nil {
		t.Run()
	} else {
		<-eng.Done()
	}
	if err := eng.Stop(); err != nil {
		log.Printf("Stop: %v", err)
	}

	st := eng.Stats()
	log.Printf("Stopped: %d events dispatched, %d dropped, %d callback failures",
		st.Dispatched, st.Dropped+st.DroppedStopping, st.CallbackFailures)
	if dry != nil {
		log.Printf("Dry run: %d events synthesized", len(dry.Synthesized()))
	}
	if err := eng.Err(); err != nil {
		log.Printf("Input hook lost: %v", err)
		return 1
	}
	return 0
}

// editBindings applies -bind and -unbind to the config file.
func editBindings(m *config.Manager, bind, unbind string) error {
	if unbind != "" && !m.DeleteBinding(unbind) {
		return fmt.Errorf("no binding for %q", unbind)
	}
	if bind != "" {
		hk, action, ok := strings.Cut(bind, "=")
		if !ok {
			return fmt.Errorf("binding %q is not HOTKEY=ACTION", bind)
		}
		m.SetBinding(config.Binding{Hotkey: strings.TrimSpace(hk), Action: strings.TrimSpace(action)})
	}
	if err := m.Get().Validate(); err != nil {
		return err
	}
	return m.Save()
}

// feedChords emits each line of r as a chord press and release through the
// fake backend. Lines that do not parse are reported and skipped.
func feedChords(r io.Reader, b *fake.Backend) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		keys, err := hotkey.Parse(line)
		if err != nil {
			log.Printf("Dry run: %v", err)
			continue
		}
		if !b.Emit(chordEvents(keys)...) {
			return
		}
	}
}

// chordEvents presses keys in order and releases them in reverse. Generic
// modifiers are pressed as their left-hand key.
func chordEvents(keys []event.Code) []event.Event {
	evs := make([]event.Event, 0, 2*len(keys))
	for _, k := range keys {
		evs = append(evs, event.KeyDownEvent(k.Physicalize(), false))
	}
	for i := len(keys) - 1; i >= 0; i-- {
		evs = append(evs, event.KeyUpEvent(keys[i].Physicalize()))
	}
	return evs
}

func permissionHint() string {
	switch runtime.GOOS {
	case "darwin":
		return "Grant Accessibility and Input Monitoring access to this program in System Settings > Privacy & Security."
	case "linux":
		return "Add your user to the 'input' group (or run as root) to read /dev/input, and allow write access to /dev/uinput for synthesis."
	case "windows":
		return "Run as Administrator to hook input of elevated windows."
	}
	return "The input hook needs elevated permissions on this system."
}
