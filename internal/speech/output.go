package speech

import (
	"context"
	"sync"
	"time"

	"github.com/hbenali/friday/internal/logger"
)

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithNotifyCapacity sets the internal wake-up channel capacity.
func WithNotifyCapacity(n int) EngineOption {
	return func(e *Engine) { e.notify = make(chan struct{}, n) }
}

// WithOfflineFallback installs the offline synthesizer spoken when the
// render backend or every playback sink fails.
func WithOfflineFallback(es *ESpeak) EngineOption {
	return func(e *Engine) { e.offline = es }
}

// Engine is the speech output worker. Speak appends to a FIFO queue and
// returns immediately; a single goroutine owns rendering and playback,
// so utterances play in submission order and never overlap.
//
// Rendering goes through the artifact cache: a phrase spoken twice with
// the same voice parameters is rendered once. Playback walks the sink
// chain in order until one succeeds; when everything fails the offline
// synthesizer (if installed) speaks the text directly.
type Engine struct {
	synth   Synthesizer
	sinks   []Sink
	offline *ESpeak
	cache   *Cache
	log     *logger.Logger

	mu          sync.Mutex
	queue       []Utterance
	notify      chan struct{}
	speaking    bool
	interrupted bool // set by StopSpeaking, checked before each playback
	defaults    VoiceParams
}

// NewEngine creates a speech output engine. Sinks are tried in the
// given order for every utterance.
func NewEngine(synth Synthesizer, sinks []Sink, cache *Cache, defaults VoiceParams, log *logger.Logger, opts ...EngineOption) *Engine {
	if defaults.Voice == "" {
		defaults.Voice = DefaultVoice
	}
	e := &Engine{
		synth:    synth,
		sinks:    sinks,
		cache:    cache,
		log:      log,
		notify:   make(chan struct{}, 32),
		defaults: defaults,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Speak queues text with the engine's default voice parameters.
// Non-blocking; empty or whitespace-only text is dropped.
func (e *Engine) Speak(text string) {
	e.mu.Lock()
	defaults := e.defaults
	e.mu.Unlock()
	e.SpeakWith(text, defaults)
}

// SpeakWith queues text with explicit voice parameters. Non-blocking.
func (e *Engine) SpeakWith(text string, params VoiceParams) {
	if isBlank(text) {
		return
	}
	e.mu.Lock()
	if params.Voice == "" {
		params.Voice = e.defaults.Voice
	}
	if params.Rate <= 0 {
		params.Rate = e.defaults.Rate
	}
	if params.Volume < 0 {
		params.Volume = e.defaults.Volume
	}
	e.queue = append(e.queue, Utterance{Text: text, Params: params, QueuedAt: time.Now()})
	qLen := len(e.queue)
	e.mu.Unlock()

	e.log.Debug("speech: queued (queue_len=%d): %s", qLen, truncate(text, 60))

	select {
	case e.notify <- struct{}{}:
	default: // already signaled
	}
}

// SetVoiceProperties updates the default rate and volume applied to
// future Speak calls. Already-queued utterances keep their parameters.
// Out-of-range values leave the current default in place.
func (e *Engine) SetVoiceProperties(rate int, volume float64) {
	e.mu.Lock()
	if rate > 0 {
		e.defaults.Rate = rate
	}
	if volume >= 0 && volume <= 1 {
		e.defaults.Volume = volume
	}
	e.mu.Unlock()
	e.log.Debug("speech: voice properties set (rate=%d, volume=%.2f)", rate, volume)
}

// StopSpeaking empties the pending queue and halts the current playback.
// After it returns no previously queued utterance will play.
func (e *Engine) StopSpeaking() {
	e.mu.Lock()
	dropped := len(e.queue)
	e.queue = e.queue[:0]
	e.interrupted = true
	e.mu.Unlock()

	for _, s := range e.sinks {
		s.Stop()
	}
	if e.offline != nil {
		e.offline.Stop()
	}
	e.log.Debug("speech: stopped (dropped %d queued)", dropped)
}

// IsSpeaking reports whether an utterance is being rendered or played.
func (e *Engine) IsSpeaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speaking
}

// QueueLen returns the number of pending utterances.
func (e *Engine) QueueLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Cache exposes the artifact cache for stats reporting.
func (e *Engine) Cache() *Cache { return e.cache }

// Start launches the worker goroutine. Non-blocking.
func (e *Engine) Start(ctx context.Context) {
	go e.processLoop(ctx)
	e.log.Info("speech engine started")
}

func (e *Engine) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			e.log.Info("speech engine stopped")
			return
		case <-e.notify:
			e.drain(ctx)
		}
	}
}

// drain plays queued utterances in FIFO order until the queue is empty.
func (e *Engine) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Clear the interrupt so items queued after StopSpeaking play.
		e.mu.Lock()
		e.interrupted = false
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		u := e.queue[0]
		e.queue = e.queue[1:]
		e.speaking = true
		e.mu.Unlock()

		e.play(ctx, u)

		e.mu.Lock()
		e.speaking = false
		e.mu.Unlock()
	}
}

// play renders one utterance (through the cache) and walks the sink
// chain. Failures are logged and absorbed; the queue keeps moving.
func (e *Engine) play(ctx context.Context, u Utterance) {
	waited := time.Since(u.QueuedAt).Round(time.Millisecond)
	e.log.Debug("speech: speaking (waited=%s): %s", waited, truncate(u.Text, 60))

	path, err := e.render(ctx, u)
	if err != nil {
		e.log.Error("speech: render failed: %v", err)
		e.sayOffline(u)
		return
	}

	for _, sink := range e.sinks {
		e.mu.Lock()
		aborted := e.interrupted
		e.mu.Unlock()
		if aborted {
			e.log.Debug("speech: playback aborted")
			return
		}

		if err := sink.Play(path); err != nil {
			e.log.Warn("speech: sink %s failed: %v", sink.Name(), err)
			continue
		}
		return
	}

	e.log.Error("speech: all sinks failed for: %s", truncate(u.Text, 60))
	e.sayOffline(u)
}

// render returns the artifact path for the utterance, synthesizing and
// caching on a miss.
func (e *Engine) render(ctx context.Context, u Utterance) (string, error) {
	if path, ok := e.cache.Get(u.Text, u.Params); ok {
		return path, nil
	}
	wav, err := e.synth.Synthesize(ctx, u.Text, u.Params)
	if err != nil {
		return "", err
	}
	return e.cache.Put(u.Text, u.Params, wav)
}

// sayOffline speaks through the offline fallback, if installed.
func (e *Engine) sayOffline(u Utterance) {
	if e.offline == nil {
		return
	}
	e.mu.Lock()
	aborted := e.interrupted
	e.mu.Unlock()
	if aborted {
		return
	}
	if err := e.offline.Say(u.Text, u.Params); err != nil {
		e.log.Error("speech: offline fallback failed: %v", err)
	}
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
