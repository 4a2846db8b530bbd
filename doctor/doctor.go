// Package doctor walks the user through the pieces a dictation needs: the
// config file, the global hotkey, microphone plus transcription, and text
// injection.
package doctor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"murmur/audio"
	"murmur/capture"
	"murmur/clipboard"
	"murmur/config"
	"murmur/dictionary"
	"murmur/hotkey"
	"murmur/shutdown"
	"murmur/transcriber"
)

type check struct {
	name string
	run  func(*env) error
}

type env struct {
	cfg *config.Config
	out io.Writer
	in  *bufio.Reader
}

func (e *env) printf(format string, args ...any) { fmt.Fprintf(e.out, format, args...) }

func (e *env) confirm(question string) bool {
	e.printf("%s [y/n]: ", question)
	answer, _ := e.in.ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// Run executes every check and returns an exit code (0 all pass, 1 any fail).
func Run(cfg *config.Config, in io.Reader, out io.Writer) int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Fprintln(out, "murmur doctor - interactive system diagnostics")
	fmt.Fprintln(out, "==============================================")

	e := &env{cfg: cfg, out: out, in: bufio.NewReader(in)}
	ok := runChecks(e, []check{
		{"Configuration", checkConfig},
		{"Hotkey detection", checkHotkey},
		{"Microphone and transcription", checkMicrophone},
		{"Text injection", checkInjection},
	})

	fmt.Fprintln(out)
	if ok {
		fmt.Fprintln(out, "All checks passed!")
		return 0
	}
	fmt.Fprintln(out, "Some checks failed. See details above.")
	return 1
}

// runChecks stops at the first failure; later checks depend on earlier ones.
func runChecks(e *env, checks []check) bool {
	for i, c := range checks {
		e.printf("\n[%d/%d] %s\n", i+1, len(checks), c.name)
		if err := c.run(e); err != nil {
			e.printf("  FAIL: %v\n", err)
			return false
		}
		e.printf("  PASS\n")
	}
	return true
}

func setupInterruptHandler() {
	ch := make(chan os.Signal, 1)
	shutdown.Notify(ch)
	go func() {
		<-ch
		resetTerminal()
		fmt.Fprintln(os.Stderr, "\nInterrupted")
		os.Exit(1)
	}()
}

func checkConfig(e *env) error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	e.printf("  hotkey %s, overlay %s, paste %s\n",
		hotkey.Format(e.cfg.Hotkey.Keys), e.cfg.Overlay.Mode, e.cfg.Paste.Mode)
	return nil
}

func checkHotkey(e *env) error {
	if msg, err := hotkey.Diagnose(); err != nil {
		return err
	} else if msg != "" {
		e.printf("  %s\n", msg)
	}

	keys, err := hotkey.ParseKeys(e.cfg.Hotkey.Keys)
	if err != nil {
		return err
	}
	hk, err := hotkey.New(keys)
	if err != nil {
		return err
	}
	if err := hk.Register(); err != nil {
		return fmt.Errorf("could not register hotkey: %w", err)
	}
	defer hk.Unregister()

	e.printf("  Press %s...\n", hotkey.Format(keys))
	select {
	case <-hk.Keydown():
		select {
		case <-hk.Keyup():
		case <-time.After(5 * time.Second):
		}
		// some backends leave the terminal in raw mode
		resetTerminal()
		return nil
	case <-time.After(10 * time.Second):
		return fmt.Errorf("timeout waiting for hotkey")
	}
}

func checkMicrophone(e *env) error {
	actx, err := audio.NewContext()
	if err != nil {
		return fmt.Errorf("cannot connect to audio: %w", err)
	}
	defer actx.Close()

	var dev *audio.DeviceInfo
	if e.cfg.Capture.Device != "" {
		if dev, err = audio.FindDevice(actx, e.cfg.Capture.Device); err != nil {
			return err
		}
	}
	name := "system default"
	if dev != nil {
		name = dev.Name
	}
	e.printf("  Device: %s\n", name)
	if dev != nil && audio.IsBluetooth(dev.Name) {
		e.printf("  Note: Bluetooth headsets record at low quality while the mic is open\n")
	}

	tr, err := transcriber.New(e.cfg.Transcriber)
	if err != nil {
		return err
	}
	dict, err := dictionary.New(e.cfg.Dictionary)
	if err != nil {
		return err
	}
	svc := capture.New(actx, tr, dict, capture.Config{
		Device:   dev,
		Gain:     e.cfg.Capture.Gain,
		Language: e.cfg.Capture.Language,
	})
	defer svc.Close()

	e.printf("  Press Enter and speak for 3 seconds...")
	e.in.ReadString('\n')

	ctx := context.Background()
	if err := svc.StartCapture(ctx, ""); err != nil {
		return err
	}
	e.printf("  Recording")
	for i := 0; i < 6; i++ {
		time.Sleep(500 * time.Millisecond)
		e.printf(".")
	}
	e.printf(" done, transcribing with %s\n", tr.Name())

	res, err := svc.StopCapture(ctx)
	if err != nil {
		return err
	}
	text := res.ProcessedText
	if text == "" {
		text = "(no speech detected)"
	}
	e.printf("\n  Transcribed text: %s\n\n", text)
	if !e.confirm("  Is this correct?") {
		return fmt.Errorf("transcription not confirmed")
	}
	return nil
}

func checkInjection(e *env) error {
	msg, err := clipboard.Verify()
	if err != nil {
		return err
	}
	e.printf("  %s\n", msg)

	in := clipboard.NewInjector(clipboard.Options{
		Mode:         e.cfg.Paste.Mode,
		Restore:      true,
		RestoreDelay: e.cfg.Paste.RestoreDelay,
	})
	if err := in.Init(); err != nil {
		e.printf("  Warning: paste init: %v\n", err)
	}

	sentinel := "murmur-preserve-check"
	if err := clipboard.Copy(sentinel); err != nil {
		return fmt.Errorf("clipboard copy failed: %w", err)
	}

	e.printf("  Focus a text editor window...\n")
	for i := 5; i > 0; i-- {
		e.printf("  %d...\n", i)
		time.Sleep(time.Second)
	}
	if err := in.InjectText(context.Background(), "murmur-doctor-test"); err != nil {
		return err
	}
	time.Sleep(e.cfg.Paste.RestoreDelay + 300*time.Millisecond)

	resetTerminal()
	if !e.confirm(`  Did the text "murmur-doctor-test" appear?`) {
		return fmt.Errorf("injection not confirmed")
	}

	if e.cfg.Paste.Mode == clipboard.ModePaste {
		restored, err := clipboard.Read()
		if err != nil {
			return fmt.Errorf("could not read clipboard after restore: %w", err)
		}
		if restored != sentinel {
			return fmt.Errorf("clipboard not preserved (got %q, want %q)", restored, sentinel)
		}
		e.printf("  clipboard preserved\n")
	}
	return nil
}
