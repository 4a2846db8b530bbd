// Package capture is the recording half of a dictation: it opens the
// microphone, streams levels while recording, encodes the clip to FLAC and
// turns it into text with the configured transcriber and dictionary.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"murmur/audio"
	"murmur/dictation"
	"murmur/dictionary"
	"murmur/encoder"
	"murmur/event"
	"murmur/log"
	"murmur/transcriber"
)

var (
	ErrBusy         = errors.New("capture already in progress")
	ErrNotRecording = errors.New("not recording")
	// ErrCancelled is returned by StopCapture when CancelCapture dropped the
	// recording while it was being finished.
	ErrCancelled = dictation.ErrCaptureCancelled
)

type Config struct {
	Device   *audio.DeviceInfo // nil means the system default
	Gain     int32
	Language string // used when StartCapture gets no language
	Bands    int    // amplitude bands per level event

	// MaxDuration ends a recording on its own; 0 means no limit.
	MaxDuration time.Duration
	// Clips shorter than MinDuration are not sent for transcription.
	MinDuration time.Duration

	// SilenceWarn is how much silence triggers OnSilence.
	SilenceWarn time.Duration
	// SilenceTimeout ends a recording that stayed silent this long; 0 disables.
	SilenceTimeout time.Duration
	OnSilence      func()

	// TargetApp names the focused application when recording starts.
	TargetApp func() string
}

func (c Config) withDefaults() Config {
	if c.Bands <= 0 {
		c.Bands = 8
	}
	if c.SilenceWarn <= 0 {
		c.SilenceWarn = 8 * time.Second
	}
	return c
}

type recording struct {
	dev      audio.CaptureDevice
	enc      *encoder.FlacEncoder
	meter    *meter
	silence  *silenceMonitor
	language string
	target   string
	started  time.Time
	timer    *time.Timer

	cancel  context.CancelFunc // set once transcription starts
	writeMu sync.Mutex
	err     error
}

func (r *recording) setErr(err error) {
	r.writeMu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.writeMu.Unlock()
}

func (r *recording) failure() error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.err
}

// Service records one clip at a time. Its phase only tracks Idle, Recording
// and Processing; locking is a controller concept.
type Service struct {
	audio audio.Context
	tr    transcriber.Transcriber
	dict  *dictionary.Dictionary
	cfg   Config

	amplitude  *event.Topic[dictation.AmplitudeEvent]
	phases     *event.Topic[dictation.PhaseEvent]
	completion *event.Topic[dictation.CompletionEvent]

	mu    sync.Mutex
	state dictation.Phase
	rec   *recording
}

func New(ctx audio.Context, tr transcriber.Transcriber, dict *dictionary.Dictionary, cfg Config) *Service {
	return &Service{
		audio:      ctx,
		tr:         tr,
		dict:       dict,
		cfg:        cfg.withDefaults(),
		amplitude:  event.NewTopic[dictation.AmplitudeEvent]("amplitude"),
		phases:     event.NewTopic[dictation.PhaseEvent]("capture_phase"),
		completion: event.NewTopic[dictation.CompletionEvent]("completion"),
		state:      dictation.PhaseIdle,
	}
}

func (s *Service) Amplitude() *event.Topic[dictation.AmplitudeEvent]    { return s.amplitude }
func (s *Service) Phases() *event.Topic[dictation.PhaseEvent]           { return s.phases }
func (s *Service) Completions() *event.Topic[dictation.CompletionEvent] { return s.completion }

func (s *Service) Phase() dictation.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetDevice switches the microphone for the next recording.
func (s *Service) SetDevice(dev *audio.DeviceInfo) {
	s.mu.Lock()
	s.cfg.Device = dev
	s.mu.Unlock()
}

func (s *Service) StartCapture(_ context.Context, language string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != dictation.PhaseIdle {
		return ErrBusy
	}
	if language == "" {
		language = s.cfg.Language
	}

	enc, err := encoder.NewFlac()
	if err != nil {
		return err
	}
	dev, err := s.audio.NewCapture(s.cfg.Device, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
		Gain:       s.cfg.Gain,
	})
	if err != nil {
		return fmt.Errorf("opening capture device: %w", err)
	}

	rec := &recording{
		dev:      dev,
		enc:      enc,
		silence:  newSilenceMonitor(s.cfg.SilenceWarn, s.cfg.SilenceTimeout),
		language: language,
	}
	if s.cfg.TargetApp != nil {
		rec.target = s.cfg.TargetApp()
	}
	rec.meter = newMeter(encoder.SampleRate, s.cfg.Bands, func(levels []float32, speech bool) {
		s.onTick(rec, levels, speech)
	})
	dev.SetCallback(func(data []byte, _ uint32) {
		if _, err := rec.enc.Write(data); err != nil {
			rec.setErr(err)
			return
		}
		rec.meter.feed(data)
	})
	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		return fmt.Errorf("starting capture on %s: %w", dev.DeviceName(), err)
	}

	rec.started = time.Now()
	if s.cfg.MaxDuration > 0 {
		rec.timer = time.AfterFunc(s.cfg.MaxDuration, func() { s.autoStop(rec, "max_duration") })
	}
	s.rec = rec
	s.state = dictation.PhaseRecording
	log.Infof("capture_started device=%s language=%s", dev.DeviceName(), language)
	return nil
}

func (s *Service) onTick(rec *recording, levels []float32, speech bool) {
	s.amplitude.Publish(dictation.AmplitudeEvent{Levels: levels})
	switch rec.silence.Tick(speech) {
	case silenceWarn, silenceRepeat:
		log.Info("no_voice_warning")
		if s.cfg.OnSilence != nil {
			s.cfg.OnSilence()
		}
	case silenceAutoStop:
		go s.autoStop(rec, "silence")
	}
}

// StopCapture ends the recording and returns its transcript. Cancelling the
// recording while this runs aborts the transcription and StopCapture returns
// ErrCancelled, even if a transcript arrived.
func (s *Service) StopCapture(ctx context.Context) (dictation.Result, error) {
	s.mu.Lock()
	if s.state != dictation.PhaseRecording {
		s.mu.Unlock()
		return dictation.Result{}, ErrNotRecording
	}
	rec := s.rec
	s.state = dictation.PhaseProcessing
	ctx, cancel := context.WithCancel(ctx)
	rec.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	res, err := s.finish(ctx, rec)
	if !s.release(rec) {
		return dictation.Result{}, ErrCancelled
	}
	return res, err
}

// CancelCapture drops the current recording without transcribing it.
func (s *Service) CancelCapture(context.Context) error {
	s.mu.Lock()
	rec := s.rec
	state := s.state
	if state == dictation.PhaseIdle {
		s.mu.Unlock()
		return ErrNotRecording
	}
	s.rec = nil
	s.state = dictation.PhaseIdle
	cancel := rec.cancel
	s.mu.Unlock()

	if state == dictation.PhaseProcessing {
		if cancel != nil {
			cancel()
		}
	} else {
		s.closeDevice(rec)
		rec.enc.Close()
	}
	log.Info("capture_cancelled")
	return nil
}

// autoStop finishes rec on the service's own initiative and announces the
// outcome on the phase and completion topics.
func (s *Service) autoStop(rec *recording, reason string) {
	s.mu.Lock()
	if s.rec != rec || s.state != dictation.PhaseRecording {
		s.mu.Unlock()
		return
	}
	s.state = dictation.PhaseProcessing
	ctx, cancel := context.WithCancel(context.Background())
	rec.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	log.Info("auto_stop: " + reason)
	s.phases.Publish(dictation.PhaseEvent{State: dictation.PhaseProcessing})

	res, err := s.finish(ctx, rec)
	if !s.release(rec) {
		return
	}
	if err != nil {
		log.Errorf("auto stop: %v", err)
		s.phases.Publish(dictation.PhaseEvent{State: dictation.PhaseIdle})
		return
	}
	s.completion.Publish(dictation.CompletionEvent{Result: res})
}

// release returns the service to Idle if rec is still the current recording.
func (s *Service) release(rec *recording) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec != rec {
		return false
	}
	s.rec = nil
	s.state = dictation.PhaseIdle
	return true
}

func (s *Service) closeDevice(rec *recording) {
	if rec.timer != nil {
		rec.timer.Stop()
	}
	rec.dev.Stop()
	rec.dev.ClearCallback()
	rec.dev.Close()
}

func (s *Service) finish(ctx context.Context, rec *recording) (dictation.Result, error) {
	s.closeDevice(rec)
	elapsed := time.Since(rec.started)

	if err := rec.enc.Close(); err != nil {
		return dictation.Result{}, fmt.Errorf("encoding: %w", err)
	}
	if err := rec.failure(); err != nil {
		return dictation.Result{}, fmt.Errorf("encoding: %w", err)
	}

	res := dictation.Result{DurationMs: elapsed.Milliseconds(), TargetApp: rec.target}
	audioLen := encoder.Duration(rec.enc.TotalFrames())
	if audioLen == 0 || audioLen < s.cfg.MinDuration {
		log.Infof("recording_too_short: %v", audioLen)
		return res, nil
	}

	out, err := s.tr.Transcribe(ctx, transcriber.Request{
		Audio:    rec.enc.Bytes(),
		Format:   "flac",
		Language: rec.language,
		Prompt:   s.dict.Prompt(),
	})
	if err != nil {
		return dictation.Result{}, fmt.Errorf("transcribing: %w", err)
	}
	res.RawText = out.Text
	res.ProcessedText = s.dict.Apply(out.Text)
	log.Infof("transcribed provider=%s audio=%v elapsed=%v flac_kb=%d",
		out.Provider, audioLen, out.Elapsed, len(rec.enc.Bytes())/1024)
	return res, nil
}

// Close stops any recording and closes the event topics.
func (s *Service) Close() {
	s.CancelCapture(context.Background())
	s.amplitude.Close()
	s.phases.Close()
	s.completion.Close()
}
