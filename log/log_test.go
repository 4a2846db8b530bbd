package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func TestResolveDirFlag(t *testing.T) {
	got, err := ResolveDir("/tmp/murmur-logs")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/murmur-logs" {
		t.Errorf("got %q, want /tmp/murmur-logs", got)
	}
}

func TestResolveDirFlagRelative(t *testing.T) {
	got, err := ResolveDir("logs")
	if err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(wd, "logs"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveDirEnv(t *testing.T) {
	t.Setenv("MURMUR_LOG_PATH", "/tmp/murmur-env-log")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/murmur-env-log" {
		t.Errorf("got %q, want /tmp/murmur-env-log", got)
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv("MURMUR_LOG_PATH", "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "murmur") {
		t.Errorf("default dir %q does not mention murmur", got)
	}
}

func TestInitCreatesFiles(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{diagFileName, transcribeFileName} {
		if _, err := os.Stat(filepath.Join(tmp, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestCallsBeforeInitAreNoops(t *testing.T) {
	Close()
	Info("ignored")
	Errorf("ignored %d", 1)
	Transition("start", "idle", "recording")
	TranscriptionText("ignored")
}

func TestTranscriptionText(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	TranscriptionText("Hello world")

	data, err := os.ReadFile(filepath.Join(tmp, transcribeFileName))
	if err != nil {
		t.Fatal(err)
	}
	fields := strings.Split(strings.TrimSuffix(string(data), "\n"), "\t")
	if len(fields) != 3 {
		t.Fatalf("expected 3 tab-separated fields, got %q", data)
	}
	if fields[2] != "Hello world" {
		t.Errorf("text field = %q", fields[2])
	}
}

func TestDiagnosticsRespectLevel(t *testing.T) {
	tmp := setupLogDir(t)
	t.Cleanup(func() { SetLevel("info") })

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Debugf("hidden %s", "detail")
	if err := SetLevel("debug"); err != nil {
		t.Fatal(err)
	}
	Transition("lock", "recording", "locked")
	Info("hotkey_registered")
	Close()

	data, err := os.ReadFile(filepath.Join(tmp, diagFileName))
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if strings.Contains(out, "hidden detail") {
		t.Error("debug line written at info level")
	}
	for _, want := range []string{"hotkey_registered", "from=recording", "to=locked"} {
		if !strings.Contains(out, want) {
			t.Errorf("diagnostics log missing %q:\n%s", want, out)
		}
	}
}

func TestSetLevelRejectsUnknown(t *testing.T) {
	if err := SetLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Close()
	Close()
}
