// Friday — a local voice-command assistant.
//
// Usage:
//
//	friday [-verbose] [-quiet] [-no-voice] [-no-wake]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/hbenali/friday/internal/assistant"
	"github.com/hbenali/friday/internal/command"
	"github.com/hbenali/friday/internal/config"
	"github.com/hbenali/friday/internal/display"
	"github.com/hbenali/friday/internal/listen"
	"github.com/hbenali/friday/internal/logger"
	"github.com/hbenali/friday/internal/speech"
	"github.com/hbenali/friday/internal/util"
	"github.com/hbenali/friday/internal/wakeword"
)

func main() {
	_ = godotenv.Load()

	verbose := flag.Bool("verbose", false, "enable verbose/debug logging")
	quiet := flag.Bool("quiet", false, "disable all logging")
	logFile := flag.String("log-file", ".friday-logs/friday.log", "file to write logs to (use \"stderr\" to log to console)")
	noSpeech := flag.Bool("no-speech", false, "disable text-to-speech even if Azure keys are set")
	noVoice := flag.Bool("no-voice", false, "disable microphone input, typed commands only")
	noWake := flag.Bool("no-wake", false, "skip wake-word gating and listen continuously")
	flag.Parse()

	// Configure logger.
	logLevel := logger.LevelNormal
	if *verbose {
		logLevel = logger.LevelVerbose
	}
	if *quiet {
		logLevel = logger.LevelOff
	}

	// Direct logs to a file by default so the REPL stays clean.
	var logOut io.Writer = os.Stderr
	if *logFile != "" && *logFile != "stderr" {
		dir := filepath.Dir(*logFile)
		if dir != "" && dir != "." {
			os.MkdirAll(dir, 0o755)
		}
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v (falling back to stderr)\n", *logFile, err)
		} else {
			logOut = f
			defer f.Close()
		}
	}

	// Redirect Go's default log package (used by third-party libs like
	// the whisper transcriber) to the same output so it doesn't spam
	// the terminal.
	stdlog.SetOutput(logOut)
	stdlog.SetFlags(stdlog.Ltime)

	log := logger.New(logLevel, logOut)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Set up context — cancelled when the UI quits.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ui := display.NewUI()

	// ── Speech output ────────────────────────────────────────────

	engine := buildSpeechEngine(cfg, *noSpeech, log)
	if engine != nil {
		engine.Start(ctx)
	}
	voice := &voiceOutput{engine: engine, ui: ui}

	// ── Command routing ──────────────────────────────────────────

	web := util.NewWebClient()
	router := command.NewRouter(log)
	handlers := command.NewHandlers(web, voice, log,
		command.WithNotify(ui.PrintOutput),
	)
	handlers.Install(router)

	// ── Voice input ──────────────────────────────────────────────

	var listener assistant.Listener
	var wakeDet listen.WakeDetector

	if !*noVoice {
		ctrl, err := buildController(cfg, log)
		if err != nil {
			// No audio device is fatal to voice input only; typed
			// commands keep working.
			log.Error("voice input unavailable: %v", err)
			ui.SetVoiceAvailable(false)
		} else {
			listener = ctrl
			ui.SetVoiceAvailable(true)
			if !*noWake {
				wakeDet = buildWakeDetector(cfg, log)
				if wakeDet == nil {
					log.Warn("wake word unavailable, listening continuously")
				}
			}
		}
	}

	// ── Assistant loop ───────────────────────────────────────────

	opts := []assistant.Option{
		assistant.WithListenRequest(listen.Request{
			Timeout:         cfg.STTTimeout,
			PhraseTimeLimit: cfg.PhraseTimeLimit,
			CalibrateFor:    cfg.CalibrateDuration,
		}),
		assistant.WithOnHeard(ui.PrintVoice),
		assistant.WithOnState(ui.SetState),
	}
	if wakeDet != nil {
		opts = append(opts, assistant.WithWakeWord(wakeDet))
	}
	asst := assistant.New(listener, voice, router, log, opts...)

	fmt.Println(display.RenderBanner())
	switch {
	case listener != nil && wakeDet != nil:
		fmt.Println(display.BannerStyle.Render(
			fmt.Sprintf("  Voice mode ON — say %q to activate, or type commands.", cfg.WakeWord)))
	case listener != nil:
		fmt.Println(display.BannerStyle.Render("  Voice mode ON — always listening. Type commands anytime."))
	default:
		fmt.Println(display.BannerStyle.Render("  Typed commands only. Type 'help' for the command list."))
	}
	fmt.Println(display.BannerStyle.Render("  Type 'quit' to exit."))
	fmt.Println()

	// Run app logic in a background goroutine.
	go func() {
		ui.WaitReady()
		go asst.Run(ctx)
		runInputLoop(ctx, ui, asst)
		ui.Quit()
	}()

	// Bubble Tea owns the terminal — blocks until quit.
	if err := ui.Run(); err != nil {
		log.Error("display: %v", err)
	}
	cancel()
	asst.Stop()
}

// runInputLoop feeds typed commands into the assistant until quit.
func runInputLoop(ctx context.Context, ui *display.UI, asst *assistant.Assistant) {
	for {
		select {
		case <-ctx.Done():
			return
		case input, ok := <-ui.InputChan():
			if !ok {
				return
			}
			input = strings.TrimSpace(input)
			if input == "" {
				continue
			}
			if input == "quit" || input == "exit" {
				return
			}
			asst.Submit(ctx, input)
		}
	}
}

// buildSpeechEngine assembles the TTS chain with graceful degradation:
// Azure synthesis when keys are present, espeak otherwise, text-only
// when neither is available.
func buildSpeechEngine(cfg config.Config, noSpeech bool, log *logger.Logger) *speech.Engine {
	if noSpeech {
		log.Info("TTS disabled by flag")
		return nil
	}

	es, esErr := speech.NewESpeak(log)
	if esErr != nil {
		log.Debug("espeak unavailable: %v", esErr)
	}

	var synth speech.Synthesizer
	switch {
	case cfg.AzureSpeechKey != "" && cfg.AzureSpeechRegion != "":
		synth = speech.NewAzureClient(cfg.AzureSpeechKey, cfg.AzureSpeechRegion, log)
		log.Info("TTS enabled (voice=%s, region=%s)", cfg.VoiceName, cfg.AzureSpeechRegion)
	case es != nil:
		synth = es
		log.Info("TTS enabled (offline espeak only)")
	default:
		log.Info("TTS disabled: set %s and %s env vars, or install espeak-ng",
			speech.EnvAzureSpeechKey, speech.EnvAzureSpeechRegion)
		return nil
	}

	var sinks []speech.Sink
	if player, err := speech.NewPlayer(log); err != nil {
		log.Warn("native audio playback unavailable: %v", err)
	} else {
		sinks = append(sinks, player)
	}
	if cmdPlayer, err := speech.NewCmdPlayer(log); err != nil {
		log.Debug("command-line playback unavailable: %v", err)
	} else {
		sinks = append(sinks, cmdPlayer)
	}
	if len(sinks) == 0 && es == nil {
		log.Error("no playback path available, speech disabled")
		return nil
	}

	cache := speech.NewCache(cfg.CacheDir, cfg.DiskCache, log)
	defaults := speech.VoiceParams{
		Voice:  cfg.VoiceName,
		Rate:   cfg.VoiceSpeed,
		Volume: cfg.VoiceVolume,
	}

	opts := []speech.EngineOption{}
	if es != nil {
		opts = append(opts, speech.WithOfflineFallback(es))
	}
	return speech.NewEngine(synth, sinks, cache, defaults, log, opts...)
}

// buildController opens the microphone and assembles the recognition
// chain: Google's free speech endpoint first, local whisper offline.
func buildController(cfg config.Config, log *logger.Logger) (*listen.Controller, error) {
	cap, err := listen.NewMicCapturer(cfg.MicSampleRate, log)
	if err != nil {
		return nil, err
	}

	google := listen.NewGoogleRecognizer(cfg.RecognizerLanguage, log)
	var fallback listen.Recognizer
	if whisper, err := listen.NewWhisperRecognizer(cfg.WhisperCLI, cfg.WhisperModelPath, cfg.RecognizerLanguage, log); err != nil {
		log.Warn("offline recognition unavailable: %v", err)
	} else {
		fallback = whisper
	}
	chain := listen.NewChain(google, fallback, log)

	ctrl := listen.NewController(cap, chain, listen.ControllerConfig{
		EnergyThreshold: cfg.EnergyThreshold,
		PauseThreshold:  cfg.PauseThreshold,
		NonSpeakingDur:  cfg.NonSpeakingDur,
		SkipCalibration: cfg.SkipCalibration,
	}, log)
	return ctrl, nil
}

// buildWakeDetector picks the configured wake backend. Returns nil when
// neither backend can start; the caller degrades to always-listening.
func buildWakeDetector(cfg config.Config, log *logger.Logger) listen.WakeDetector {
	if cfg.WakeBackend == "embedded" {
		missing := firstMissing(cfg.WakewordModel, cfg.MelspecModel, cfg.EmbeddingModel, cfg.OnnxLibPath)
		if missing != "" {
			log.Warn("embedded wake backend needs %s", missing)
			return nil
		}
		return wakeword.NewEmbedded(wakeword.EmbeddedConfig{
			WakewordModel:  cfg.WakewordModel,
			MelspecModel:   cfg.MelspecModel,
			EmbeddingModel: cfg.EmbeddingModel,
			OnnxLib:        cfg.OnnxLibPath,
			Threshold:      cfg.WakeThreshold,
		}, log)
	}

	det, err := wakeword.NewProcess(cfg.WakeWord, cfg.WhisperCLI, cfg.WhisperModelPath, log,
		wakeword.WithChunkLength(cfg.WakeChunkLength),
	)
	if err != nil {
		log.Warn("process wake backend unavailable: %v", err)
		return nil
	}
	return det
}

func firstMissing(paths ...string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return p
		}
	}
	return ""
}

// voiceOutput bridges the assistant to the display and the speech
// engine: every spoken line also lands in the scrollback, and with no
// engine it degrades to text only.
type voiceOutput struct {
	engine *speech.Engine
	ui     *display.UI
}

func (v *voiceOutput) Speak(text string) {
	v.ui.PrintChat(text)
	if v.engine != nil {
		v.engine.Speak(text)
	}
}

func (v *voiceOutput) StopSpeaking() {
	if v.engine != nil {
		v.engine.StopSpeaking()
	}
}

func (v *voiceOutput) IsSpeaking() bool {
	return v.engine != nil && v.engine.IsSpeaking()
}

func (v *voiceOutput) QueueLen() int {
	if v.engine == nil {
		return 0
	}
	return v.engine.QueueLen()
}
