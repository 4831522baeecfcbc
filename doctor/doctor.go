// Package doctor runs the -doctor diagnostics.
package doctor

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"ecochat/audio"
	"ecochat/backend"
	"ecochat/clipboard"
	"ecochat/encoder"
	"ecochat/hotkey"
	"ecochat/recorder"
	"ecochat/shutdown"
)

const recordFor = 3 * time.Second

var out io.Writer = os.Stdout

type Options struct {
	Client *backend.Client
	Device string
	Format encoder.Format
	Hotkey hotkey.Binding
}

// Run executes every check and returns an exit code (0 all pass, 1 any fail).
func Run(opts Options) int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Fprintln(out, "ecochat doctor - system diagnostics")
	fmt.Fprintln(out, "===================================")

	ctx := context.Background()
	checks := []struct {
		name string
		run  func() bool
	}{
		{"Backend", func() bool { return checkBackend(ctx, opts.Client) }},
		{"Global hotkey", func() bool { return checkHotkey(opts.Hotkey) }},
		{"Microphone and transcription", func() bool { return checkMicAndTranscription(ctx, opts) }},
		{"Clipboard", checkClipboard},
	}

	allPass := true
	for i, c := range checks {
		fmt.Fprintf(out, "\n[%d/%d] %s\n", i+1, len(checks), c.name)
		if !c.run() {
			allPass = false
		}
	}

	fmt.Fprintln(out)
	if allPass {
		fmt.Fprintln(out, "All checks passed!")
		return 0
	}
	fmt.Fprintln(out, "Some checks failed. See details above.")
	return 1
}

func setupInterruptHandler() {
	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		resetTerminal()
		fmt.Fprintln(os.Stderr, "\nInterrupted")
		os.Exit(1)
	}()
}

func checkBackend(ctx context.Context, client *backend.Client) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	start := time.Now()
	if err := client.Health(ctx); err != nil {
		fmt.Fprintf(out, "  FAIL: %s/health/: %v\n", client.BaseURL(), err)
		return false
	}
	fmt.Fprintf(out, "  PASS: %s is up (%dms)\n", client.BaseURL(), time.Since(start).Milliseconds())
	return true
}

func checkHotkey(b hotkey.Binding) bool {
	msg, err := hotkey.Diagnose(b)
	if err != nil {
		// the terminal mic button still works without it
		fmt.Fprintf(out, "  WARN: %v\n", err)
		return true
	}
	fmt.Fprintf(out, "  PASS: %s\n", msg)
	return true
}

func checkMicAndTranscription(ctx context.Context, opts Options) bool {
	actx, err := audio.NewContext()
	if err != nil {
		fmt.Fprintf(out, "  FAIL: cannot connect to audio: %v\n", err)
		return false
	}
	defer actx.Close()
	return recordAndTranscribe(ctx, actx, opts, recordFor)
}

// doctorSink prints alerts and the input level meter.
type doctorSink struct {
	recorder.NopSink
	alerts chan string
	peak   float64
}

func (s *doctorSink) Alert(title, message string) {
	select {
	case s.alerts <- title + ": " + message:
	default:
	}
}

func (s *doctorSink) Level(rms float64) {
	s.peak = max(s.peak, rms)
}

func recordAndTranscribe(ctx context.Context, actx audio.Context, opts Options, d time.Duration) bool {
	devices, err := actx.Devices()
	if err != nil {
		fmt.Fprintf(out, "  FAIL: cannot list devices: %v\n", err)
		return false
	}
	if len(devices) == 0 {
		fmt.Fprintln(out, "  FAIL: no capture devices found")
		return false
	}
	for _, dev := range devices {
		fmt.Fprintf(out, "  device: %s\n", dev.Name)
	}

	device, err := audio.FindDevice(actx, opts.Device)
	if err != nil {
		fmt.Fprintf(out, "  FAIL: %v\n", err)
		return false
	}

	sink := &doctorSink{alerts: make(chan string, 2)}
	var text string
	rec := recorder.New(recorder.Config{
		Audio:        actx,
		Device:       device,
		Format:       opts.Format,
		Transcriber:  opts.Client,
		Sink:         sink,
		OnTranscript: func(t string) { text = t },
	})
	defer rec.Close()

	fmt.Fprintf(out, "  Speak for %d seconds", int(d.Seconds()))
	if err := rec.Start(ctx); err != nil {
		fmt.Fprintf(out, "\n  FAIL: %v\n", err)
		return false
	}
	ticker := time.NewTicker(500 * time.Millisecond)
	deadline := time.After(d)
loop:
	for {
		select {
		case <-ticker.C:
			fmt.Fprint(out, ".")
		case <-deadline:
			break loop
		}
	}
	ticker.Stop()
	fmt.Fprintln(out, " done")

	rec.Stop(ctx)

	select {
	case alert := <-sink.alerts:
		fmt.Fprintf(out, "  FAIL: %s\n", alert)
		return false
	default:
	}

	if sink.peak < 0.001 {
		fmt.Fprintln(out, "  WARN: input level is silent, check the microphone")
	}
	if strings.TrimSpace(text) == "" {
		text = "(no speech detected)"
	}
	fmt.Fprintf(out, "  PASS: transcribed: %s\n", text)
	return true
}

func checkClipboard() bool {
	if !clipboard.Available() {
		fmt.Fprintf(out, "  WARN: %v\n", clipboard.ErrUnavailable)
		return true
	}
	if err := clipboard.RoundTrip("ecochat-doctor-test"); err != nil {
		fmt.Fprintf(out, "  FAIL: %v\n", err)
		return false
	}
	fmt.Fprintln(out, "  PASS: clipboard copy and read back")
	return true
}
