package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"murmur/clipboard"
	"murmur/config"
	"murmur/doctor"
	"murmur/history"
	"murmur/log"
	"murmur/shutdown"
)

var version = "dev"

type options struct {
	configPath string
	logPath    string
	lang       string
	overlay    string
	device     string
	profile    string
	history    int
	setup      bool
	noPaste    bool
	noSound    bool
	version    bool
	doctor     bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("murmur", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "config file (default: <user config dir>/murmur/config.yaml)")
	fs.StringVar(&o.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	fs.StringVar(&o.lang, "lang", "", "language code for transcription (e.g. en, es, fr); overrides the config")
	fs.StringVar(&o.overlay, "overlay", "", "overlay: auto, gui, tui or none; overrides the config")
	fs.StringVar(&o.device, "device", "", "use named microphone device")
	fs.StringVar(&o.profile, "profile", "", "enable pprof server (e.g. localhost:6060)")
	fs.IntVar(&o.history, "history", 0, "print the last N dictations and exit")
	fs.BoolVar(&o.setup, "setup", false, "select microphone device interactively")
	fs.BoolVar(&o.noPaste, "nopaste", false, "copy results to the clipboard without pasting")
	fs.BoolVar(&o.noSound, "nosound", false, "disable audio cues")
	fs.BoolVar(&o.version, "version", false, "print version and exit")
	fs.BoolVar(&o.doctor, "doctor", false, "run system diagnostics and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return o, nil
}

// apply layers command-line overrides on top of the loaded config.
func (o options) apply(cfg *config.Config) {
	if o.lang != "" {
		cfg.Capture.Language = o.lang
	}
	if o.overlay != "" {
		cfg.Overlay.Mode = o.overlay
	}
	if o.device != "" {
		cfg.Capture.Device = o.device
	}
	if o.noPaste {
		cfg.Paste.Mode = clipboard.ModeCopy
	}
	if o.noSound {
		cfg.Sound.Enabled = false
	}
}

func loadConfig(o options) (*config.Config, error) {
	path := o.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	o.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

func run(args []string) int {
	opts, err := parseFlags(args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	if opts.version {
		fmt.Printf("murmur %s\n", version)
		return 0
	}

	logPath, err := log.ResolveDir(opts.logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	initCrashLog()

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if opts.doctor {
		return doctor.Run(cfg, os.Stdin, os.Stdout)
	}
	if opts.history > 0 {
		if err := showHistory(os.Stdout, cfg, opts.history); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	if opts.profile != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", opts.profile)
			if err := http.ListenAndServe(opts.profile, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	a, err := newApp(cfg, opts.setup)
	if err != nil {
		log.Errorf("startup: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := shutdown.Context(context.Background())
	defer stop()
	if err := a.run(ctx); err != nil {
		log.Errorf("run: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func showHistory(w io.Writer, cfg *config.Config, n int) error {
	dir, err := cfg.HistoryDir()
	if err != nil {
		return err
	}
	store, err := history.Open(dir)
	if err != nil {
		return err
	}
	defer store.Close()
	return printHistory(w, store, n)
}

func printHistory(w io.Writer, store *history.Store, n int) error {
	entries, err := store.List(n)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "no dictations yet")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %5.1fs  %s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			float64(e.Result.DurationMs)/1000,
			e.Result.ProcessedText)
	}
	return nil
}
