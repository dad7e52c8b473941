package speech

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hbenali/friday/internal/logger"
)

// fakeSynth records every request it renders.
type fakeSynth struct {
	mu       sync.Mutex
	requests []VoiceParams
	texts    []string
	fail     bool
}

func (f *fakeSynth) Name() string { return "fake" }

func (f *fakeSynth) Synthesize(_ context.Context, text string, params VoiceParams) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("synth down")
	}
	f.texts = append(f.texts, text)
	f.requests = append(f.requests, params)
	return []byte("wav:" + text), nil
}

func (f *fakeSynth) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

// fakeSink records playback order and fails the test on overlap.
type fakeSink struct {
	t       *testing.T
	mu      sync.Mutex
	played  []string
	active  bool
	delay   time.Duration
	failAll bool
}

func (f *fakeSink) Name() string { return "fakesink" }

func (f *fakeSink) Play(path string) error {
	f.mu.Lock()
	if f.failAll {
		f.mu.Unlock()
		return errors.New("sink down")
	}
	if f.active {
		f.mu.Unlock()
		f.t.Error("overlapping playback detected")
		return nil
	}
	f.active = true
	f.played = append(f.played, path)
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	f.active = false
	f.mu.Unlock()
	return nil
}

func (f *fakeSink) Stop() {}

func (f *fakeSink) plays() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.played))
	copy(out, f.played)
	return out
}

func newTestEngine(t *testing.T, synth *fakeSynth, sink Sink) *Engine {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	cache := NewCache(t.TempDir(), true, log)
	defaults := VoiceParams{Voice: "test-voice", Rate: 120, Volume: 0.85}
	return NewEngine(synth, []Sink{sink}, cache, defaults, log)
}

func waitIdle(t *testing.T, e *Engine) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if !e.IsSpeaking() && e.QueueLen() == 0 {
			// One more settle pass so the worker finishes bookkeeping.
			time.Sleep(20 * time.Millisecond)
			if !e.IsSpeaking() && e.QueueLen() == 0 {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("engine did not drain in time")
}

func TestSpeakPlaysInOrder(t *testing.T) {
	synth := &fakeSynth{}
	sink := &fakeSink{t: t, delay: 5 * time.Millisecond}
	e := newTestEngine(t, synth, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	e.Speak("first")
	e.Speak("second")
	e.Speak("third")
	waitIdle(t, e)

	plays := sink.plays()
	if len(plays) != 3 {
		t.Fatalf("expected 3 plays, got %d", len(plays))
	}
	// Paths are content-addressed, so distinct texts give distinct paths
	// and playback order must match submission order.
	for i, text := range []string{"first", "second", "third"} {
		want, _ := e.Cache().Get(text, VoiceParams{Voice: "test-voice", Rate: 120, Volume: 0.85})
		if plays[i] != want {
			t.Fatalf("play %d: expected artifact for %q", i, text)
		}
	}
}

func TestSpeakDropsBlankText(t *testing.T) {
	synth := &fakeSynth{}
	sink := &fakeSink{t: t}
	e := newTestEngine(t, synth, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	e.Speak("")
	e.Speak("   \n\t")
	time.Sleep(50 * time.Millisecond)

	if synth.calls() != 0 {
		t.Fatalf("expected no renders for blank text, got %d", synth.calls())
	}
}

func TestRepeatPhraseRendersOnce(t *testing.T) {
	synth := &fakeSynth{}
	sink := &fakeSink{t: t}
	e := newTestEngine(t, synth, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	e.Speak("hello there")
	waitIdle(t, e)
	e.Speak("hello there")
	waitIdle(t, e)

	if got := synth.calls(); got != 1 {
		t.Fatalf("expected 1 render for repeated phrase, got %d", got)
	}
	if got := len(sink.plays()); got != 2 {
		t.Fatalf("expected 2 plays, got %d", got)
	}
}

func TestStopSpeakingClearsQueue(t *testing.T) {
	synth := &fakeSynth{}
	sink := &fakeSink{t: t, delay: 50 * time.Millisecond}
	e := newTestEngine(t, synth, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	for _, text := range []string{"one", "two", "three", "four"} {
		e.Speak(text)
	}
	// Let the first utterance start, then cut everything off.
	time.Sleep(20 * time.Millisecond)
	e.StopSpeaking()

	if e.QueueLen() != 0 {
		t.Fatalf("expected empty queue after stop, got %d", e.QueueLen())
	}

	waitIdle(t, e)
	if got := len(sink.plays()); got > 1 {
		t.Fatalf("expected at most 1 play after stop, got %d", got)
	}

	// New speech after the interrupt still plays.
	e.Speak("after stop")
	waitIdle(t, e)
	plays := sink.plays()
	if len(plays) == 0 {
		t.Fatal("expected playback to resume after stop")
	}
}

func TestSetVoicePropertiesAppliesToFutureOnly(t *testing.T) {
	synth := &fakeSynth{}
	sink := &fakeSink{t: t}
	e := newTestEngine(t, synth, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	e.Speak("before")
	waitIdle(t, e)

	e.SetVoiceProperties(90, 0.5)
	e.Speak("after")
	waitIdle(t, e)

	synth.mu.Lock()
	defer synth.mu.Unlock()
	if len(synth.requests) != 2 {
		t.Fatalf("expected 2 renders, got %d", len(synth.requests))
	}
	if synth.requests[0].Rate != 120 || synth.requests[0].Volume != 0.85 {
		t.Fatalf("first utterance used new params: %+v", synth.requests[0])
	}
	if synth.requests[1].Rate != 90 || synth.requests[1].Volume != 0.5 {
		t.Fatalf("second utterance kept old params: %+v", synth.requests[1])
	}
}

func TestSpeakWithExplicitZeroVolume(t *testing.T) {
	synth := &fakeSynth{}
	sink := &fakeSink{t: t}
	e := newTestEngine(t, synth, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	e.SpeakWith("muted line", VoiceParams{Voice: "test-voice", Rate: 120, Volume: 0})
	e.SpeakWith("default line", VoiceParams{Voice: "test-voice", Rate: 120, Volume: -1})
	waitIdle(t, e)

	synth.mu.Lock()
	defer synth.mu.Unlock()
	if len(synth.requests) != 2 {
		t.Fatalf("expected 2 renders, got %d", len(synth.requests))
	}
	if synth.requests[0].Volume != 0 {
		t.Fatalf("explicit volume 0 was overridden: %+v", synth.requests[0])
	}
	if synth.requests[1].Volume != 0.85 {
		t.Fatalf("negative volume must fall back to the default: %+v", synth.requests[1])
	}
}

func TestSinkChainFallsThrough(t *testing.T) {
	synth := &fakeSynth{}
	broken := &fakeSink{t: t, failAll: true}
	working := &fakeSink{t: t}

	log := logger.New(logger.LevelOff, nil)
	cache := NewCache(t.TempDir(), true, log)
	e := NewEngine(synth, []Sink{broken, working}, cache,
		VoiceParams{Voice: "v", Rate: 100, Volume: 1}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	e.Speak("hello")
	waitIdle(t, e)

	if len(working.plays()) != 1 {
		t.Fatalf("expected fallback sink to play, got %d plays", len(working.plays()))
	}
}
