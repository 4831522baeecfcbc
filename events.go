package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"ecochat/log"
	"ecochat/recorder"
)

// TUI message types
type chatChangedMsg struct{}
type captureStartedMsg struct{ Device string }
type captureStoppedMsg struct{ Duration time.Duration }
type audioLevelMsg struct{ Level float64 }
type transcribingMsg struct{ Active bool }
type alertMsg struct{ Title, Message string }
type noticeMsg struct{ Text string }

const bridgeBuffer = 256

// tuiBridge forwards messages from audio, network and hotkey goroutines to
// the program in order. post never blocks, so it is safe to call from
// inside Update.
type tuiBridge struct {
	msgs chan tea.Msg
}

func newTUIBridge() *tuiBridge {
	return &tuiBridge{msgs: make(chan tea.Msg, bridgeBuffer)}
}

func (b *tuiBridge) post(msg tea.Msg) {
	select {
	case b.msgs <- msg:
	default:
		if _, ok := msg.(audioLevelMsg); !ok {
			log.Warnf("tui message dropped: %T", msg)
		}
	}
}

func (b *tuiBridge) run(ctx context.Context, p *tea.Program) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.msgs:
			p.Send(msg)
		}
	}
}

// tuiSink adapts recorder events to TUI messages.
type tuiSink struct {
	post func(tea.Msg)
}

func (s tuiSink) CaptureStarted(device string)   { s.post(captureStartedMsg{Device: device}) }
func (s tuiSink) Level(rms float64)              { s.post(audioLevelMsg{Level: rms}) }
func (s tuiSink) CaptureStopped(d time.Duration) { s.post(captureStoppedMsg{Duration: d}) }
func (s tuiSink) Transcribing()                  { s.post(transcribingMsg{Active: true}) }
func (s tuiSink) TranscribeDone()                { s.post(transcribingMsg{Active: false}) }
func (s tuiSink) Alert(title, message string)    { s.post(alertMsg{Title: title, Message: message}) }

var _ recorder.EventSink = tuiSink{}

// printSink writes recorder events as plain lines for the headless mode.
type printSink struct {
	mu sync.Mutex
}

func (s *printSink) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(os.Stdout, format+"\n", args...)
}

func (s *printSink) CaptureStarted(device string) {
	s.printf("capture_started device=%s", device)
}

func (s *printSink) Level(float64) {}

func (s *printSink) CaptureStopped(d time.Duration) {
	s.printf("capture_stopped duration=%.1fs", d.Seconds())
}

func (s *printSink) Transcribing() {
	s.printf("transcribing")
}

func (s *printSink) TranscribeDone() {
	s.printf("transcribe_done")
}

func (s *printSink) Alert(title, message string) {
	s.printf("alert %s: %s", title, message)
}
