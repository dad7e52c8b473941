// Package assistant wires the ears, the voice, and the command router
// into the main interaction loop.
package assistant

import (
	"context"
	"sync"
	"time"

	"github.com/hbenali/friday/internal/command"
	"github.com/hbenali/friday/internal/listen"
	"github.com/hbenali/friday/internal/logger"
)

// State describes what the assistant is currently doing, for the
// front-end status line.
type State int

const (
	StateIdle      State = iota // waiting for the wake word
	StateListening              // capturing a command
	StateThinking               // dispatching a command
	StateSpeaking               // voicing the response
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Listener is the voice-input surface. Satisfied by listen.Controller.
type Listener interface {
	Listen(ctx context.Context, req listen.Request) listen.Result
	ListenForWakeWord(ctx context.Context, det listen.WakeDetector) (bool, error)
	Stop()
	Reset()
}

// Speaker is the voice-output surface. Satisfied by speech.Engine.
type Speaker interface {
	Speak(text string)
	StopSpeaking()
	IsSpeaking() bool
	QueueLen() int
}

// Option configures the Assistant.
type Option func(*Assistant)

// WithWakeWord installs a wake-word gate. Without one the assistant
// listens continuously.
func WithWakeWord(det listen.WakeDetector) Option {
	return func(a *Assistant) { a.wake = det }
}

// WithListenRequest overrides the per-phrase capture parameters.
func WithListenRequest(req listen.Request) Option {
	return func(a *Assistant) { a.req = req }
}

// WithOnHeard sets a callback fired with each recognized utterance.
func WithOnHeard(fn func(text, backend string)) Option {
	return func(a *Assistant) { a.onHeard = fn }
}

// WithOnState sets a callback fired on state transitions.
func WithOnState(fn func(State)) Option {
	return func(a *Assistant) { a.onState = fn }
}

// WithWakeAck sets the phrase spoken when the wake word is heard.
func WithWakeAck(phrase string) Option {
	return func(a *Assistant) { a.wakeAck = phrase }
}

// Assistant runs the interaction loop: wait for the wake word, capture
// one phrase, dispatch it, speak the response, repeat. Typed input
// from the front-end flows through the same dispatch path via Submit.
type Assistant struct {
	listener Listener // nil when no audio device is available
	speaker  Speaker
	router   *command.Router
	wake     listen.WakeDetector
	log      *logger.Logger

	req     listen.Request
	wakeAck string
	onHeard func(text, backend string)
	onState func(State)

	// Serializes voice and typed commands so handlers never overlap.
	handleMu sync.Mutex

	mu      sync.Mutex
	running bool
	state   State
}

// New builds the assistant. A nil listener degrades to typed-only
// input; everything else keeps working.
func New(listener Listener, speaker Speaker, router *command.Router, log *logger.Logger, opts ...Option) *Assistant {
	a := &Assistant{
		listener: listener,
		speaker:  speaker,
		router:   router,
		log:      log,
		req: listen.Request{
			Timeout:         5 * time.Second,
			PhraseTimeLimit: 5 * time.Second,
		},
		wakeAck: "Yes?",
		onHeard: func(string, string) {},
		onState: func(State) {},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State returns the current loop state.
func (a *Assistant) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Assistant) setState(s State) {
	a.mu.Lock()
	changed := a.state != s
	a.state = s
	a.mu.Unlock()
	if changed {
		a.onState(s)
	}
}

// Run drives the interaction loop until ctx is cancelled. Call in a
// goroutine; Submit stays usable the whole time.
func (a *Assistant) Run(ctx context.Context) {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return
	}
	a.running = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	if a.listener == nil {
		a.log.Info("assistant: no audio input, typed commands only")
		<-ctx.Done()
		return
	}

	a.listener.Reset()
	a.log.Info("assistant: voice loop started (wake=%v)", a.wake != nil)

	for {
		select {
		case <-ctx.Done():
			a.log.Info("assistant: voice loop stopped")
			return
		default:
		}

		if a.wake != nil {
			a.setState(StateIdle)
			detected, err := a.listener.ListenForWakeWord(ctx, a.wake)
			if err != nil {
				a.log.Error("assistant: wake word backend failed: %v", err)
				a.sleep(ctx, 2*time.Second)
				continue
			}
			if !detected {
				continue
			}
			a.speaker.StopSpeaking()
			if a.wakeAck != "" {
				a.speaker.Speak(a.wakeAck)
				a.waitQuiet(ctx)
			}
		}

		// Echo prevention: never capture while we are speaking.
		a.waitQuiet(ctx)

		a.setState(StateListening)
		res := a.listener.Listen(ctx, a.req)

		switch res.Outcome {
		case listen.OutcomeSuccess:
			a.onHeard(res.Text, res.Backend)
			a.Submit(ctx, res.Text)

		case listen.OutcomeTimeout:
			// Silence after the wake word; go back to idle quietly.
			a.log.Debug("assistant: listen timed out")

		case listen.OutcomeNoMatch:
			a.speaker.Speak("I didn't catch that.")

		case listen.OutcomeBackendError:
			a.log.Error("assistant: recognition failed: %s", res.Detail)
			a.speaker.Speak("I'm having trouble hearing you right now.")
			a.sleep(ctx, time.Second)

		case listen.OutcomeCanceled:
			// Stop was called; loop re-checks ctx and the flag owner
			// decides when to Reset.
			a.sleep(ctx, 200*time.Millisecond)
		}
	}
}

// Submit dispatches one utterance through the router and speaks the
// response. Typed input from the front-end uses this directly.
func (a *Assistant) Submit(ctx context.Context, text string) {
	a.handleMu.Lock()
	defer a.handleMu.Unlock()

	a.setState(StateThinking)
	response, matched := a.router.Process(ctx, text)
	if !matched {
		a.log.Info("assistant: unrecognized command %q", text)
	}
	if response != "" {
		a.setState(StateSpeaking)
		a.speaker.Speak(response)
	}
}

// Stop interrupts listening and speaking.
func (a *Assistant) Stop() {
	if a.listener != nil {
		a.listener.Stop()
	}
	a.speaker.StopSpeaking()
}

// Resume re-arms listening after Stop.
func (a *Assistant) Resume() {
	if a.listener != nil {
		a.listener.Reset()
	}
}

// waitQuiet blocks until the speaker has drained so the microphone
// doesn't pick up our own voice.
func (a *Assistant) waitQuiet(ctx context.Context) {
	for a.speaker.IsSpeaking() || a.speaker.QueueLen() > 0 {
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return
		}
	}
}

func (a *Assistant) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
