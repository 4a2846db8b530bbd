package doctor

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"murmur/config"
)

func TestRunChecksStopsAtFirstFailure(t *testing.T) {
	var out bytes.Buffer
	e := &env{out: &out, in: bufio.NewReader(strings.NewReader(""))}

	var ran []string
	ok := runChecks(e, []check{
		{"first", func(*env) error { ran = append(ran, "first"); return nil }},
		{"second", func(*env) error { ran = append(ran, "second"); return errors.New("broken") }},
		{"third", func(*env) error { ran = append(ran, "third"); return nil }},
	})
	if ok {
		t.Fatal("expected failure")
	}
	if strings.Join(ran, ",") != "first,second" {
		t.Errorf("ran = %v", ran)
	}
	got := out.String()
	for _, want := range []string{"[1/3] first", "PASS", "[2/3] second", "FAIL: broken"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "third") {
		t.Errorf("third check was announced:\n%s", got)
	}
}

func TestConfirm(t *testing.T) {
	for in, want := range map[string]bool{"y\n": true, "YES\n": true, "n\n": false, "\n": false, "": false} {
		e := &env{out: &bytes.Buffer{}, in: bufio.NewReader(strings.NewReader(in))}
		if got := e.confirm("ok?"); got != want {
			t.Errorf("confirm(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCheckConfig(t *testing.T) {
	var out bytes.Buffer
	e := &env{cfg: config.Default(), out: &out}
	if err := checkConfig(e); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Control+Shift+D") {
		t.Errorf("output = %q", out.String())
	}

	e.cfg.Overlay.Mode = "hologram"
	if err := checkConfig(e); err == nil {
		t.Error("expected invalid config to fail")
	}
}
