package wakeword

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/hbenali/friday/internal/logger"
)

// ── openWakeWord pipeline geometry ───────────────────────────────

const (
	wakeSampleRate = 16000
	chunkSamples   = 1280 // 80 ms @ 16 kHz
	audioQueueCap  = 32
	melWindowSize  = 76 // mel frames per embedding window
	melStepSize    = 8  // mel frames between embedding windows
	embeddingDim   = 96
	nEmbedFrames   = 16 // embedding frames per scoring window
	melBins        = 32
	nMelFrames     = 5 // mel frames produced per audio chunk

	// The score peak can land a frame early or late, so detection
	// triggers on the max over the last few scores.
	scoreWindowSize = 5

	// Only the most recent embedding slots are scored; older slots are
	// zeroed so accumulated silence embeddings cannot suppress a
	// detection.
	recentWindow = 5
)

// EmbeddedConfig holds the model paths and tuning for the in-process
// ONNX detector.
type EmbeddedConfig struct {
	WakewordModel  string // keyword-specific model, e.g. "models/friday.onnx"
	MelspecModel   string // shared melspectrogram.onnx
	EmbeddingModel string // shared embedding_model.onnx
	OnnxLib        string // ONNX Runtime shared library

	Threshold float64 // score at or above triggers detection
}

func (c *EmbeddedConfig) defaults() {
	if c.Threshold <= 0 {
		c.Threshold = 0.3
	}
}

// Embedded runs the openWakeWord ONNX pipeline against a dedicated
// capture device. It owns the microphone only while Detect runs; the
// device is released before Detect returns so the phrase capture can
// take over.
type Embedded struct {
	cfg EmbeddedConfig
	log *logger.Logger
}

// NewEmbedded creates the in-process detector.
func NewEmbedded(cfg EmbeddedConfig, log *logger.Logger) *Embedded {
	cfg.defaults()
	return &Embedded{cfg: cfg, log: log}
}

// pipeline bundles the three ONNX sessions and their tensors.
type pipeline struct {
	melIn, melOut     *ort.Tensor[float32]
	embedIn, embedOut *ort.Tensor[float32]
	wwIn, wwOut       *ort.Tensor[float32]
	melSess           *ort.AdvancedSession
	embedSess         *ort.AdvancedSession
	wwSess            *ort.AdvancedSession
}

func newPipeline(cfg EmbeddedConfig) (*pipeline, error) {
	p := &pipeline{}
	var err error

	if p.melIn, err = ort.NewEmptyTensor[float32](ort.NewShape(1, chunkSamples)); err != nil {
		return nil, err
	}
	if p.melOut, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1, nMelFrames, melBins)); err != nil {
		p.close()
		return nil, err
	}
	if p.melSess, err = newSession(cfg.MelspecModel, p.melIn, p.melOut); err != nil {
		p.close()
		return nil, err
	}

	if p.embedIn, err = ort.NewEmptyTensor[float32](ort.NewShape(1, melWindowSize, melBins, 1)); err != nil {
		p.close()
		return nil, err
	}
	if p.embedOut, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1, 1, embeddingDim)); err != nil {
		p.close()
		return nil, err
	}
	if p.embedSess, err = newSession(cfg.EmbeddingModel, p.embedIn, p.embedOut); err != nil {
		p.close()
		return nil, err
	}

	if p.wwIn, err = ort.NewEmptyTensor[float32](ort.NewShape(1, nEmbedFrames, embeddingDim)); err != nil {
		p.close()
		return nil, err
	}
	if p.wwOut, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1)); err != nil {
		p.close()
		return nil, err
	}
	if p.wwSess, err = newSession(cfg.WakewordModel, p.wwIn, p.wwOut); err != nil {
		p.close()
		return nil, err
	}

	return p, nil
}

func newSession(modelPath string, in, out *ort.Tensor[float32]) (*ort.AdvancedSession, error) {
	inInfo, outInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", modelPath, err)
	}
	return ort.NewAdvancedSession(
		modelPath,
		[]string{inInfo[0].Name}, []string{outInfo[0].Name},
		[]ort.Value{in}, []ort.Value{out},
		nil,
	)
}

func (p *pipeline) close() {
	for _, t := range []*ort.Tensor[float32]{p.melIn, p.melOut, p.embedIn, p.embedOut, p.wwIn, p.wwOut} {
		if t != nil {
			t.Destroy()
		}
	}
	for _, s := range []*ort.AdvancedSession{p.melSess, p.embedSess, p.wwSess} {
		if s != nil {
			s.Destroy()
		}
	}
}

// Detect initialises the runtime, the models, and a capture device,
// then scores audio until the wake word fires or ctx ends. All
// resources are released on return.
func (d *Embedded) Detect(ctx context.Context) (bool, error) {
	d.log.Debug("wakeword/embedded: initializing ONNX runtime (lib=%s)", d.cfg.OnnxLib)
	ort.SetSharedLibraryPath(d.cfg.OnnxLib)
	if err := ort.InitializeEnvironment(); err != nil {
		return false, fmt.Errorf("wakeword: ONNX init: %w", err)
	}
	defer ort.DestroyEnvironment()

	pipe, err := newPipeline(d.cfg)
	if err != nil {
		return false, fmt.Errorf("wakeword: %w", err)
	}
	defer pipe.close()

	mCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(_ string) {})
	if err != nil {
		return false, fmt.Errorf("wakeword: audio context: %w", err)
	}
	defer func() { _ = mCtx.Uninit(); mCtx.Free() }()

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.SampleRate = wakeSampleRate
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = 1
	devCfg.Alsa.NoMMap = 1

	audioCh := make(chan []int16, audioQueueCap)
	var drops atomic.Int64

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
			case audioCh <- pcm:
			default:
				drops.Add(1)
			}
		},
	}

	device, err := malgo.InitDevice(mCtx.Context, devCfg, callbacks)
	if err != nil {
		return false, fmt.Errorf("wakeword: capture device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return false, fmt.Errorf("wakeword: capture start: %w", err)
	}
	defer device.Stop()
	d.log.Debug("wakeword/embedded: capture started (rate=%d, chunk=%d)", wakeSampleRate, chunkSamples)

	melBuffer := make([]float32, 0, 300*melBins)
	embedBuffer := make([]float32, nEmbedFrames*embeddingDim)
	pending := make([]int16, 0, chunkSamples*2)
	scoreWindow := make([]float32, scoreWindowSize)
	scoreIdx := 0

	var peakScore float32
	lastStats := time.Now()

	for {
		select {
		case <-ctx.Done():
			return false, nil

		case frame := <-audioCh:
			if now := time.Now(); now.Sub(lastStats) >= 5*time.Second {
				d.log.Debug("wakeword/embedded: drops=%d melBuf=%d peak=%.4f",
					drops.Load(), len(melBuffer)/melBins, peakScore)
				peakScore = 0
				lastStats = now
			}

			pending = append(pending, frame...)

			for len(pending) >= chunkSamples {
				chunk := pending[:chunkSamples]
				n := copy(pending, pending[chunkSamples:])
				pending = pending[:n]

				// Step 1: audio chunk → mel frames.
				inData := pipe.melIn.GetData()
				for i, v := range chunk {
					inData[i] = float32(v)
				}
				if err := pipe.melSess.Run(); err != nil {
					d.log.Error("wakeword: melspec run failed: %v", err)
					continue
				}
				melData := pipe.melOut.GetData()
				for f := 0; f < nMelFrames; f++ {
					for b := 0; b < melBins; b++ {
						idx := f*melBins + b
						if idx < len(melData) {
							// openWakeWord's mel scaling.
							melBuffer = append(melBuffer, melData[idx]/10.0+2.0)
						}
					}
				}

				// Step 2: mel windows → embeddings (sliding window).
				totalMel := len(melBuffer) / melBins
				newEmbed := false
				for totalMel >= melWindowSize {
					eData := pipe.embedIn.GetData()
					copy(eData, melBuffer[:melWindowSize*melBins])
					if err := pipe.embedSess.Run(); err != nil {
						d.log.Error("wakeword: embed run failed: %v", err)
						break
					}
					eOut := pipe.embedOut.GetData()

					copy(embedBuffer, embedBuffer[embeddingDim:])
					copy(embedBuffer[(nEmbedFrames-1)*embeddingDim:], eOut[:embeddingDim])
					newEmbed = true

					n := copy(melBuffer, melBuffer[melStepSize*melBins:])
					melBuffer = melBuffer[:n]
					totalMel = len(melBuffer) / melBins
				}
				if !newEmbed {
					continue
				}

				// Step 3: score the recent embeddings, older slots zeroed.
				wwData := pipe.wwIn.GetData()
				padSlots := nEmbedFrames - recentWindow
				for i := 0; i < padSlots*embeddingDim; i++ {
					wwData[i] = 0
				}
				copy(wwData[padSlots*embeddingDim:], embedBuffer[padSlots*embeddingDim:])
				if err := pipe.wwSess.Run(); err != nil {
					d.log.Error("wakeword: score run failed: %v", err)
					continue
				}

				score := pipe.wwOut.GetData()[0]
				if score > peakScore {
					peakScore = score
				}
				scoreWindow[scoreIdx%scoreWindowSize] = score
				scoreIdx++

				var maxScore float32
				for _, s := range scoreWindow {
					if s > maxScore {
						maxScore = s
					}
				}
				if float64(maxScore) >= d.cfg.Threshold*0.1 {
					d.log.Debug("wakeword/embedded: score=%.6f max=%.6f (threshold=%.2f)",
						score, maxScore, d.cfg.Threshold)
				}
				if float64(maxScore) >= d.cfg.Threshold {
					d.log.Info("wakeword: detected (score=%.4f, windowMax=%.4f)", score, maxScore)
					return true, nil
				}
			}
		}
	}
}
