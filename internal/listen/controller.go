package listen

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hbenali/friday/internal/logger"
)

// WakeDetector gates full listening while the assistant is idle.
// Detect blocks until the keyword is heard (true), the context is
// cancelled (false, nil), or the backend dies (false, err).
type WakeDetector interface {
	Detect(ctx context.Context) (bool, error)
}

// ControllerOption configures the Controller.
type ControllerOption func(*Controller)

// WithTempDir sets the directory for captured-audio WAV files.
func WithTempDir(dir string) ControllerOption {
	return func(c *Controller) { c.tempDir = dir }
}

// WithEnergyMultiplier tunes how far above ambient the VAD threshold
// sits after calibration.
func WithEnergyMultiplier(m float64) ControllerOption {
	return func(c *Controller) { c.energyMultiplier = m }
}

// ControllerConfig carries the endpointing tunables.
type ControllerConfig struct {
	EnergyThreshold float64       // initial VAD threshold, replaced by calibration
	PauseThreshold  time.Duration // trailing silence that ends a phrase
	NonSpeakingDur  time.Duration // silence padding kept around the phrase
	SkipCalibration bool
}

// Controller owns the microphone and produces recognized text, one
// phrase per Listen call. It degrades gracefully through the
// recognition chain; backend failures become tagged results, never
// errors across this boundary. The capture device is owned exclusively
// by the goroutine running Listen; one listen is outstanding at a time.
type Controller struct {
	cap Capturer
	rec *Chain
	cfg ControllerConfig
	log *logger.Logger

	tempDir          string
	energyMultiplier float64

	stopped atomic.Bool
	mu      sync.Mutex
	energy  float64 // current VAD threshold
	busy    bool
}

// NewController builds the controller. The capturer must already be
// open: a missing audio device surfaces from NewMicCapturer, before
// this constructor runs. The non-speaking duration is clamped so it
// never exceeds the pause threshold.
func NewController(cap Capturer, rec *Chain, cfg ControllerConfig, log *logger.Logger, opts ...ControllerOption) *Controller {
	if cfg.NonSpeakingDur > cfg.PauseThreshold {
		log.Warn("listen: non-speaking duration %s exceeds pause threshold %s, clamping",
			cfg.NonSpeakingDur, cfg.PauseThreshold)
		cfg.NonSpeakingDur = cfg.PauseThreshold
	}
	c := &Controller{
		cap:              cap,
		rec:              rec,
		cfg:              cfg,
		log:              log,
		tempDir:          os.TempDir(),
		energyMultiplier: 1.5,
		energy:           cfg.EnergyThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the effective (clamped) endpointing configuration.
func (c *Controller) Config() ControllerConfig { return c.cfg }

// EnergyThreshold returns the current VAD threshold.
func (c *Controller) EnergyThreshold() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.energy
}

// Stop raises the cancellation flag. Both Listen and ListenForWakeWord
// poll it at the top of every loop iteration, so return is bounded by
// one capture frame. The flag stays raised until Reset.
func (c *Controller) Stop() {
	c.stopped.Store(true)
	c.log.Debug("listen: stop requested")
}

// Reset lowers the cancellation flag so listening can resume.
func (c *Controller) Reset() {
	c.stopped.Store(false)
}

// Calibrate samples ambient noise for the given duration and derives
// the VAD energy threshold from its RMS level.
func (c *Controller) Calibrate(ctx context.Context, duration time.Duration) error {
	frames, err := c.cap.Start()
	if err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}
	defer c.cap.Stop()

	var total float64
	var n int
	captured := time.Duration(0)

sample:
	for captured < duration {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				// Stream ended early; average whatever we got.
				break sample
			}
			total += rms(frame)
			n++
			captured += c.frameDuration(frame)
		}
		if c.stopped.Load() {
			return nil
		}
	}

	if n == 0 {
		return nil
	}
	ambient := total / float64(n)
	threshold := ambient*c.energyMultiplier + 50 // floor keeps dead-quiet rooms sane

	c.mu.Lock()
	c.energy = threshold
	c.mu.Unlock()

	c.log.Debug("listen: calibrated (ambient=%.1f, threshold=%.1f)", ambient, threshold)
	return nil
}

// Listen captures a single phrase and runs it through the recognition
// chain. Blocks the calling goroutine until a result is available, the
// request times out, or Stop is called.
func (c *Controller) Listen(ctx context.Context, req Request) Result {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return Result{Outcome: OutcomeBackendError, Detail: "a listen is already in progress"}
	}
	c.busy = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}()

	if !c.cfg.SkipCalibration && req.CalibrateFor > 0 {
		if err := c.Calibrate(ctx, req.CalibrateFor); err != nil {
			c.log.Warn("listen: calibration failed, keeping previous threshold: %v", err)
		}
	}
	if c.stopped.Load() {
		return Result{Outcome: OutcomeCanceled}
	}

	samples, outcome := c.capturePhrase(ctx, req)
	if outcome != OutcomeSuccess {
		return Result{Outcome: outcome}
	}

	wavPath := filepath.Join(c.tempDir, fmt.Sprintf("friday-capture-%d.wav", time.Now().UnixNano()))
	if err := writeWAV(wavPath, samples, c.cap.SampleRate()); err != nil {
		return Result{Outcome: OutcomeBackendError, Detail: err.Error()}
	}
	defer os.Remove(wavPath)

	text, backend, err := c.rec.RecognizeWithBackend(ctx, wavPath)
	switch {
	case err == nil:
		c.log.Info("listen: heard %q (backend=%s)", text, backend)
		return Result{Text: text, Backend: backend, Outcome: OutcomeSuccess}
	case errors.Is(err, ErrNoMatch):
		return Result{Outcome: OutcomeNoMatch, Detail: "no intelligible speech"}
	case errors.Is(err, context.Canceled):
		return Result{Outcome: OutcomeCanceled}
	default:
		return Result{Outcome: OutcomeBackendError, Detail: err.Error()}
	}
}

// capturePhrase runs the endpointing loop: wait for energy above the
// threshold, collect until the pause threshold of silence (or the
// phrase limit), and keep a non-speaking pad on both sides. Durations
// are measured in captured samples, not wall-clock time.
func (c *Controller) capturePhrase(ctx context.Context, req Request) ([]int16, Outcome) {
	frames, err := c.cap.Start()
	if err != nil {
		c.log.Error("listen: capture start failed: %v", err)
		return nil, OutcomeBackendError
	}
	defer c.cap.Stop()

	threshold := c.EnergyThreshold()
	maxLead := int(float64(c.cap.SampleRate()) * c.cfg.NonSpeakingDur.Seconds())

	var (
		phrase     []int16
		lead       []int16       // rolling pre-speech pad
		leadDur    time.Duration // duration currently held in lead
		waited     time.Duration
		speaking   bool
		silenceRun time.Duration
		spoken     time.Duration
	)

	for {
		if c.stopped.Load() {
			return nil, OutcomeCanceled
		}

		var frame []int16
		var ok bool
		select {
		case <-ctx.Done():
			return nil, OutcomeCanceled
		case frame, ok = <-frames:
		}
		if !ok {
			// Capture stream ended underneath us.
			if speaking && len(phrase) > 0 {
				return phrase, OutcomeSuccess
			}
			return nil, OutcomeTimeout
		}

		d := c.frameDuration(frame)
		loud := rms(frame) >= threshold

		if !speaking {
			if loud {
				speaking = true
				phrase = append(phrase, lead...)
				phrase = append(phrase, frame...)
				spoken = leadDur + d
				continue
			}
			// Keep a rolling non-speaking pad to prepend once speech
			// starts. Capture callbacks hand us variable-size frames,
			// so the pad is bounded by sample count, not frame count.
			lead = append(lead, frame...)
			if len(lead) > maxLead {
				lead = lead[len(lead)-maxLead:]
			}
			leadDur = c.frameDuration(lead)
			waited += d
			if waited >= req.Timeout {
				return nil, OutcomeTimeout
			}
			continue
		}

		phrase = append(phrase, frame...)
		spoken += d
		if loud {
			silenceRun = 0
		} else {
			silenceRun += d
			if silenceRun >= c.cfg.PauseThreshold {
				return c.trimTrailingSilence(phrase, silenceRun), OutcomeSuccess
			}
		}
		if spoken >= req.PhraseTimeLimit {
			c.log.Debug("listen: phrase time limit reached")
			return phrase, OutcomeSuccess
		}
	}
}

// trimTrailingSilence shortens the trailing pause down to the
// non-speaking pad so recognizers don't chew on dead air.
func (c *Controller) trimTrailingSilence(phrase []int16, silence time.Duration) []int16 {
	excess := silence - c.cfg.NonSpeakingDur
	if excess <= 0 {
		return phrase
	}
	drop := int(float64(c.cap.SampleRate()) * excess.Seconds())
	if drop >= len(phrase) {
		return phrase
	}
	return phrase[:len(phrase)-drop]
}

// ListenForWakeWord blocks until the detector hears the keyword, Stop
// is called, or the context ends. Returns true only on detection.
func (c *Controller) ListenForWakeWord(ctx context.Context, det WakeDetector) (bool, error) {
	// Tie a sub-context to the stop flag so the detector unblocks
	// promptly; detection backends only see context cancellation.
	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		tick := time.NewTicker(100 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-dctx.Done():
				return
			case <-tick.C:
				if c.stopped.Load() {
					cancel()
					return
				}
			}
		}
	}()

	detected, err := det.Detect(dctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return false, err
	}
	return detected, nil
}

func (c *Controller) frameDuration(frame []int16) time.Duration {
	rate := c.cap.SampleRate()
	if rate <= 0 {
		return 0
	}
	return time.Duration(len(frame)) * time.Second / time.Duration(rate)
}
