package listen

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hbenali/friday/internal/logger"
)

const testRate = 16000

// frame builds an 80ms mono frame of constant amplitude. A constant
// signal has an RMS equal to its amplitude, which makes the energy
// gate deterministic.
func frame(amp int16) []int16 {
	f := make([]int16, testRate*80/1000)
	for i := range f {
		f[i] = amp
	}
	return f
}

// fakeCapturer replays a fixed frame script and closes the stream.
type fakeCapturer struct {
	frames [][]int16
}

func (f *fakeCapturer) Start() (<-chan []int16, error) {
	ch := make(chan []int16, len(f.frames))
	for _, fr := range f.frames {
		ch <- fr
	}
	close(ch)
	return ch, nil
}

func (f *fakeCapturer) Stop()           {}
func (f *fakeCapturer) SampleRate() int { return testRate }
func (f *fakeCapturer) Close()          {}

// streamCapturer emits silence until Stop, for cancellation tests.
type streamCapturer struct {
	quit chan struct{}
	once sync.Once
}

func newStreamCapturer() *streamCapturer {
	return &streamCapturer{quit: make(chan struct{})}
}

func (s *streamCapturer) Start() (<-chan []int16, error) {
	ch := make(chan []int16)
	go func() {
		defer close(ch)
		for {
			select {
			case <-s.quit:
				return
			case ch <- frame(0):
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()
	return ch, nil
}

func (s *streamCapturer) Stop()           { s.once.Do(func() { close(s.quit) }) }
func (s *streamCapturer) SampleRate() int { return testRate }
func (s *streamCapturer) Close()          { s.Stop() }

func testConfig() ControllerConfig {
	return ControllerConfig{
		EnergyThreshold: 150,
		PauseThreshold:  200 * time.Millisecond,
		NonSpeakingDur:  100 * time.Millisecond,
		SkipCalibration: true,
	}
}

func TestListenCapturesPhrase(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	cap := &fakeCapturer{frames: [][]int16{
		frame(0), frame(0), // ambient lead
		frame(1000), frame(1000), frame(1000), frame(1000), frame(1000),
		frame(0), frame(0), frame(0), frame(0), // trailing pause ends the phrase
	}}
	rec := NewChain(&fakeRec{name: "fake", text: "hello there"}, nil, log)
	c := NewController(cap, rec, testConfig(), log, WithTempDir(t.TempDir()))

	res := c.Listen(context.Background(), Request{
		Timeout:         time.Second,
		PhraseTimeLimit: 2 * time.Second,
	})
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", res.Outcome, res.Detail)
	}
	if res.Text != "hello there" || res.Backend != "fake" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestListenTimesOutOnSilence(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	cap := &fakeCapturer{frames: [][]int16{
		frame(0), frame(0), frame(0), frame(0), frame(0), frame(0),
	}}
	rec := NewChain(&fakeRec{name: "fake", text: "never"}, nil, log)
	c := NewController(cap, rec, testConfig(), log, WithTempDir(t.TempDir()))

	res := c.Listen(context.Background(), Request{
		Timeout:         400 * time.Millisecond, // five 80ms silence frames exceed this
		PhraseTimeLimit: 2 * time.Second,
	})
	if res.Outcome != OutcomeTimeout {
		t.Fatalf("expected timeout, got %s", res.Outcome)
	}
	if res.Text != "" {
		t.Fatalf("timeout must not carry text, got %q", res.Text)
	}
}

func TestListenPhraseTimeLimit(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	// Speech never pauses; the phrase limit has to cut it off.
	frames := make([][]int16, 0, 20)
	for i := 0; i < 20; i++ {
		frames = append(frames, frame(1000))
	}
	cap := &fakeCapturer{frames: frames}
	rec := NewChain(&fakeRec{name: "fake", text: "long speech"}, nil, log)
	c := NewController(cap, rec, testConfig(), log, WithTempDir(t.TempDir()))

	res := c.Listen(context.Background(), Request{
		Timeout:         time.Second,
		PhraseTimeLimit: 400 * time.Millisecond,
	})
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected success at phrase limit, got %s", res.Outcome)
	}
}

func TestStopCancelsBeforeListen(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	cap := &fakeCapturer{}
	rec := NewChain(&fakeRec{name: "fake"}, nil, log)
	c := NewController(cap, rec, testConfig(), log, WithTempDir(t.TempDir()))

	c.Stop()
	res := c.Listen(context.Background(), Request{Timeout: time.Second, PhraseTimeLimit: time.Second})
	if res.Outcome != OutcomeCanceled {
		t.Fatalf("expected canceled, got %s", res.Outcome)
	}

	// The flag is sticky until Reset.
	res = c.Listen(context.Background(), Request{Timeout: time.Second, PhraseTimeLimit: time.Second})
	if res.Outcome != OutcomeCanceled {
		t.Fatalf("expected canceled after second call, got %s", res.Outcome)
	}
	c.Reset()
	res = c.Listen(context.Background(), Request{Timeout: 80 * time.Millisecond, PhraseTimeLimit: time.Second})
	if res.Outcome == OutcomeCanceled {
		t.Fatal("Reset should re-arm listening")
	}
}

func TestStopInterruptsCapture(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	cap := newStreamCapturer()
	rec := NewChain(&fakeRec{name: "fake"}, nil, log)
	c := NewController(cap, rec, testConfig(), log, WithTempDir(t.TempDir()))

	done := make(chan Result, 1)
	go func() {
		done <- c.Listen(context.Background(), Request{
			Timeout:         time.Hour,
			PhraseTimeLimit: time.Hour,
		})
	}()

	time.Sleep(30 * time.Millisecond)
	c.Stop()

	select {
	case res := <-done:
		if res.Outcome != OutcomeCanceled {
			t.Fatalf("expected canceled, got %s", res.Outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after Stop")
	}
}

func TestCalibrateSetsThreshold(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	cap := &fakeCapturer{frames: [][]int16{frame(100), frame(100), frame(100)}}
	rec := NewChain(&fakeRec{name: "fake"}, nil, log)
	c := NewController(cap, rec, testConfig(), log, WithTempDir(t.TempDir()))

	if err := c.Calibrate(context.Background(), 160*time.Millisecond); err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	// ambient 100 * 1.5 + 50
	if got := c.EnergyThreshold(); got != 200 {
		t.Fatalf("expected threshold 200, got %.1f", got)
	}
}

func TestCalibrateReturnsWhenStreamEnds(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	// Only 160ms of audio for a 500ms window: the stream closes early
	// and calibration must settle on what it got instead of spinning.
	cap := &fakeCapturer{frames: [][]int16{frame(100), frame(100)}}
	rec := NewChain(&fakeRec{name: "fake"}, nil, log)
	c := NewController(cap, rec, testConfig(), log, WithTempDir(t.TempDir()))

	done := make(chan error, 1)
	go func() {
		done <- c.Calibrate(context.Background(), 500*time.Millisecond)
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("calibrate: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("calibrate did not return after the capture stream closed")
	}
	if got := c.EnergyThreshold(); got != 200 {
		t.Fatalf("expected threshold 200 from partial window, got %.1f", got)
	}
}

// frameSized builds a constant-amplitude frame of an arbitrary sample
// count, for exercising variable-size capture callbacks.
func frameSized(amp int16, samples int) []int16 {
	f := make([]int16, samples)
	for i := range f {
		f[i] = amp
	}
	return f
}

func TestLeadPadBoundedWithUnevenFrames(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	// 120ms silence frames overflow the 100ms pad on every iteration;
	// the retained pad must stay at exactly 100ms of samples.
	cap := &fakeCapturer{frames: [][]int16{
		frameSized(0, 1920), frameSized(0, 1920), frameSized(0, 1920),
		frame(1000),
	}}
	rec := NewChain(&fakeRec{name: "fake"}, nil, log)
	c := NewController(cap, rec, testConfig(), log, WithTempDir(t.TempDir()))

	phrase, outcome := c.capturePhrase(context.Background(), Request{
		Timeout:         time.Second,
		PhraseTimeLimit: 2 * time.Second,
	})
	if outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s", outcome)
	}
	// 100ms pad at 16kHz is 1600 samples, plus the 1280-sample speech frame.
	if want := 1600 + 1280; len(phrase) != want {
		t.Fatalf("expected %d samples (pad + speech), got %d", want, len(phrase))
	}
}

func TestNonSpeakingDurationClamped(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	cfg := ControllerConfig{
		EnergyThreshold: 150,
		PauseThreshold:  300 * time.Millisecond,
		NonSpeakingDur:  500 * time.Millisecond,
	}
	c := NewController(&fakeCapturer{}, NewChain(&fakeRec{name: "fake"}, nil, log), cfg, log)

	if got := c.Config().NonSpeakingDur; got != 300*time.Millisecond {
		t.Fatalf("expected clamp to pause threshold, got %s", got)
	}
}

// blockingDetector waits for cancellation and never detects.
type blockingDetector struct{}

func (blockingDetector) Detect(ctx context.Context) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

type instantDetector struct{ hit bool }

func (d instantDetector) Detect(context.Context) (bool, error) { return d.hit, nil }

func TestListenForWakeWord(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	c := NewController(&fakeCapturer{}, NewChain(&fakeRec{name: "fake"}, nil, log), testConfig(), log)

	detected, err := c.ListenForWakeWord(context.Background(), instantDetector{hit: true})
	if err != nil || !detected {
		t.Fatalf("expected detection, got %v/%v", detected, err)
	}

	// Stop unblocks a waiting detector without surfacing an error.
	c.Reset()
	go func() {
		time.Sleep(30 * time.Millisecond)
		c.Stop()
	}()
	detected, err = c.ListenForWakeWord(context.Background(), blockingDetector{})
	if err != nil {
		t.Fatalf("stop must not surface as error, got %v", err)
	}
	if detected {
		t.Fatal("stop must not report detection")
	}
}
