package listen

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gen2brain/malgo"

	"github.com/hbenali/friday/internal/logger"
)

// Capturer abstracts the microphone so the controller can be exercised
// with synthetic frames in tests.
type Capturer interface {
	// Start begins capture; frames arrive on the returned channel until
	// Stop. Frames are mono signed 16-bit PCM.
	Start() (<-chan []int16, error)
	Stop()
	SampleRate() int
	Close()
}

// MicCapturer captures microphone audio through miniaudio. The device
// is opened at construction; failure there means no usable input device
// and is fatal to the owning controller.
type MicCapturer struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	frames     chan []int16
	sampleRate int
	log        *logger.Logger
}

// NewMicCapturer opens the default capture device at the given rate.
func NewMicCapturer(sampleRate int, log *logger.Logger) (*MicCapturer, error) {
	mCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("%w: audio context init: %v", ErrNoAudioDevice, err)
	}

	m := &MicCapturer{
		ctx:        mCtx,
		frames:     make(chan []int16, 32),
		sampleRate: sampleRate,
		log:        log,
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.SampleRate = uint32(sampleRate)
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = 1
	devCfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_ []byte, raw []byte, _ uint32) {
			if len(raw) == 0 {
				return
			}
			n := len(raw) / 2
			pcm := make([]int16, n)
			for i := 0; i < n; i++ {
				pcm[i] = int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
			}
			select {
			case m.frames <- pcm:
			default: // consumer stalled; drop rather than block the device thread
			}
		},
	}

	device, err := malgo.InitDevice(mCtx.Context, devCfg, callbacks)
	if err != nil {
		_ = mCtx.Uninit()
		mCtx.Free()
		return nil, fmt.Errorf("%w: capture device init: %v", ErrNoAudioDevice, err)
	}
	m.device = device

	log.Debug("mic: capture device ready (rate=%d)", sampleRate)
	return m, nil
}

// Start begins streaming frames from the device.
func (m *MicCapturer) Start() (<-chan []int16, error) {
	if err := m.device.Start(); err != nil {
		return nil, fmt.Errorf("mic start: %w", err)
	}
	return m.frames, nil
}

// Stop halts the device. Frames already buffered may still be read.
func (m *MicCapturer) Stop() {
	_ = m.device.Stop()
}

// SampleRate returns the capture rate.
func (m *MicCapturer) SampleRate() int { return m.sampleRate }

// Close releases the device and audio context.
func (m *MicCapturer) Close() {
	m.device.Uninit()
	_ = m.ctx.Uninit()
	m.ctx.Free()
}

// rms computes the root-mean-square energy of a frame. Used both for
// ambient calibration and for voice-activity detection.
func rms(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sumSq float64
	for _, v := range frame {
		f := float64(v)
		sumSq += f * f
	}
	return math.Sqrt(sumSq / float64(len(frame)))
}
