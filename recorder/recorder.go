// Package recorder owns the microphone for one capture at a time and turns
// each finished capture into a transcription.
package recorder

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ecochat/audio"
	"ecochat/backend"
	"ecochat/beep"
	"ecochat/encoder"
	"ecochat/log"
)

var (
	ErrAlreadyActive = errors.New("capture already active")
	ErrClosed        = errors.New("recorder closed")
)

const (
	StartFailedTitle   = "Error"
	StartFailedMessage = "Failed to start microphone"
	UploadFailedTitle  = "Transcription Failed"
	UploadFailedMsg    = "Could not process the audio."
)

type Transcriber interface {
	Transcribe(ctx context.Context, up backend.Upload) (string, error)
}

// EventSink receives capture progress. Level is called from the audio
// thread and must not block.
type EventSink interface {
	CaptureStarted(device string)
	Level(rms float64)
	CaptureStopped(d time.Duration)
	Transcribing()
	TranscribeDone()
	Alert(title, message string)
}

type NopSink struct{}

func (NopSink) CaptureStarted(string)        {}
func (NopSink) Level(float64)                {}
func (NopSink) CaptureStopped(time.Duration) {}
func (NopSink) Transcribing()                {}
func (NopSink) TranscribeDone()              {}
func (NopSink) Alert(string, string)         {}

type Config struct {
	Audio       audio.Context
	Device      *audio.DeviceInfo
	Format      encoder.Format
	Transcriber Transcriber
	Sink        EventSink

	// OnTranscript receives each non-empty transcription.
	OnTranscript func(text string)
}

type Session struct {
	cfg Config

	mu  sync.Mutex
	cur *capture

	alive context.Context
	kill  context.CancelFunc
	wg    sync.WaitGroup
}

func New(cfg Config) *Session {
	if cfg.Sink == nil {
		cfg.Sink = NopSink{}
	}
	alive, kill := context.WithCancel(context.Background())
	return &Session{cfg: cfg, alive: alive, kill: kill}
}

type capture struct {
	dev     audio.CaptureDevice
	stream  *encodeStream
	started time.Time
}

func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

// Start opens the microphone and begins capturing. On failure the user is
// alerted and the returned error is for logging.
func (s *Session) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.alive.Err() != nil {
		return ErrClosed
	}
	if s.cur != nil {
		return ErrAlreadyActive
	}

	stream, err := newEncodeStream(s.cfg.Format)
	if err != nil {
		return s.startFailed(fmt.Errorf("creating %s encoder: %w", s.cfg.Format.Name, err))
	}

	dev, err := s.cfg.Audio.NewCapture(s.cfg.Device, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})
	if err != nil {
		stream.Finish()
		return s.startFailed(fmt.Errorf("opening microphone: %w", err))
	}

	sink := s.cfg.Sink
	dev.SetCallback(func(data []byte, _ uint32) {
		stream.Feed(data)
		if len(data) > 1 {
			sink.Level(rms(data))
		}
	})

	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		stream.Finish()
		return s.startFailed(fmt.Errorf("starting microphone: %w", err))
	}

	s.cur = &capture{dev: dev, stream: stream, started: time.Now()}
	log.Infof("capture_start device=%q format=%s", dev.DeviceName(), s.cfg.Format.Name)
	sink.CaptureStarted(dev.DeviceName())
	beep.PlayStart()
	return nil
}

func (s *Session) startFailed(err error) error {
	log.Errorf("microphone: %v", err)
	beep.PlayError()
	s.cfg.Sink.Alert(StartFailedTitle, StartFailedMessage)
	return err
}

// Stop ends the active capture, uploads it once and hands a non-empty
// transcription to OnTranscript. Stop without an active capture does
// nothing.
func (s *Session) Stop(ctx context.Context) {
	c := s.detach()
	if c == nil {
		return
	}
	defer s.wg.Done()
	s.finish(ctx, c, false)
}

// Close discards any active capture in the background. Transcriptions that
// complete after Close are dropped.
func (s *Session) Close() {
	s.kill()
	c := s.detach()
	if c == nil {
		return
	}
	go func() {
		defer s.wg.Done()
		s.finish(context.Background(), c, true)
	}()
}

// Wait blocks until every in-progress Stop or discard has returned.
func (s *Session) Wait() {
	s.wg.Wait()
}

// detach releases the capture handle under the lock so a following Start
// can never overlap it. A non-nil result is counted in wg; the caller must
// call wg.Done once finish returns.
func (s *Session) detach() *capture {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cur
	if c == nil {
		return nil
	}
	s.cur = nil
	s.wg.Add(1)
	c.dev.Stop()
	c.dev.ClearCallback()
	c.dev.Close()
	return c
}

func (s *Session) finish(ctx context.Context, c *capture, discard bool) {
	elapsed := time.Since(c.started)
	s.cfg.Sink.CaptureStopped(elapsed)
	if !discard {
		beep.PlayEnd()
	}

	data, err := c.stream.Finish()
	metrics := log.CaptureMetrics{
		Format:    s.cfg.Format.Name,
		AudioS:    float64(c.stream.Frames()) / encoder.SampleRate,
		RawKB:     float64(c.stream.Frames()*2) / 1024,
		EncodedKB: float64(len(data)) / 1024,
		EncodeMs:  float64(c.stream.EncodeTime().Microseconds()) / 1000,
		Discarded: discard,
	}
	if discard {
		log.Capture(metrics)
		return
	}
	if err != nil {
		log.Errorf("encoding capture: %v", err)
		s.uploadFailed()
		return
	}

	s.cfg.Sink.Transcribing()
	defer s.cfg.Sink.TranscribeDone()

	uploadStart := time.Now()
	text, err := s.upload(ctx, data)
	metrics.UploadMs = float64(time.Since(uploadStart).Microseconds()) / 1000

	text = strings.TrimSpace(text)
	metrics.Transcript = text != ""
	log.Capture(metrics)

	if err != nil {
		log.Errorf("transcription: %v", err)
		if s.alive.Err() == nil {
			s.uploadFailed()
		}
		return
	}
	if text == "" {
		log.Info("no_speech")
		return
	}
	if s.alive.Err() != nil {
		log.Info("transcript_dropped")
		return
	}
	if s.cfg.OnTranscript != nil {
		s.cfg.OnTranscript(text)
	}
}

// upload stages the encoded capture in a temporary file and sends it as
// the transcription request body. The file is removed on every path.
func (s *Session) upload(ctx context.Context, data []byte) (string, error) {
	dir, err := os.MkdirTemp("", "ecochat-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, s.cfg.Format.FileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return s.cfg.Transcriber.Transcribe(ctx, backend.Upload{
		FileName: s.cfg.Format.FileName,
		MIME:     s.cfg.Format.MIME,
		Data:     f,
	})
}

func (s *Session) uploadFailed() {
	beep.PlayError()
	s.cfg.Sink.Alert(UploadFailedTitle, UploadFailedMsg)
}

// rms is the root mean square of a little-endian 16-bit PCM chunk,
// normalized to [0, 1].
func rms(data []byte) float64 {
	var sumSquares float64
	n := len(data) / 2
	for i := 0; i+1 < len(data); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(data[i:]))
		normalized := float64(sample) / 32768.0
		sumSquares += normalized * normalized
	}
	return math.Sqrt(sumSquares / float64(n))
}
