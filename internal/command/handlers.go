package command

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/hbenali/friday/internal/logger"
	"github.com/hbenali/friday/internal/util"
)

// Dispatch priorities. "research" and its synonyms must outrank
// "search" because "research" contains "search" as a substring; with
// flat priorities every research request would be routed as a search.
const (
	priorityDefault  = 0
	prioritySearch   = 10
	priorityResearch = 20
	prioritySilence  = 30 // "stop talking" must never lose to anything
)

// Silencer stops in-flight speech. Satisfied by speech.Engine.
type Silencer interface {
	StopSpeaking()
}

// Handlers bundles the built-in command set and its dependencies.
type Handlers struct {
	web    *util.WebClient
	voice  Silencer
	log    *logger.Logger
	now    func() time.Time
	rng    *rand.Rand
	notify func(string) // extra lines for the display, beyond the spoken response
}

// HandlersOption configures the built-in handlers.
type HandlersOption func(*Handlers)

// WithClock overrides the time source.
func WithClock(now func() time.Time) HandlersOption {
	return func(h *Handlers) { h.now = now }
}

// WithRand overrides the random source used by the games.
func WithRand(rng *rand.Rand) HandlersOption {
	return func(h *Handlers) { h.rng = rng }
}

// WithNotify sets a sink for display-only output such as search result
// listings that are too long to speak.
func WithNotify(fn func(string)) HandlersOption {
	return func(h *Handlers) { h.notify = fn }
}

// NewHandlers builds the built-in command set.
func NewHandlers(web *util.WebClient, voice Silencer, log *logger.Logger, opts ...HandlersOption) *Handlers {
	h := &Handlers{
		web:    web,
		voice:  voice,
		log:    log,
		now:    time.Now,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		notify: func(string) {},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Install registers every built-in command on the router.
func (h *Handlers) Install(r *Router) {
	r.Register(
		Entry{Pattern: "stop talking", Priority: prioritySilence, Handler: h.Silence, Help: `"stop talking" — interrupt speech`},
		Entry{Pattern: "be quiet", Priority: prioritySilence, Handler: h.Silence},
		Entry{Pattern: "shut up", Priority: prioritySilence, Handler: h.Silence},

		Entry{Pattern: "research", Priority: priorityResearch, Handler: h.Research, Help: `"research [topic]"`},
		Entry{Pattern: "tell me about", Priority: priorityResearch, Handler: h.Research},
		Entry{Pattern: "what is", Priority: priorityResearch, Handler: h.Research},
		Entry{Pattern: "search", Priority: prioritySearch, Handler: h.Search, Help: `"search for [topic]"`},

		Entry{Pattern: "time", Handler: h.Time, Help: `"what is the time"`},
		Entry{Pattern: "date", Handler: h.Date, Help: `"what is the date"`},
		Entry{Pattern: "hello", Handler: h.Greet, Help: `"hello"`},
		Entry{Pattern: "help", Handler: h.Help, Help: `"help"`},
		Entry{Pattern: "weather", Handler: h.Weather, Help: `"what is the weather"`},
		Entry{Pattern: "open", Handler: h.Open, Help: `"open [url or application]"`},
		Entry{Pattern: "app", Handler: h.LaunchApp},
		Entry{Pattern: "execute", Handler: h.Execute, Help: `"execute [shell command]"`},
		Entry{Pattern: "youtube", Handler: h.PlayYouTube, Help: `"play [query] on youtube"`},
		Entry{Pattern: "play a game", Priority: prioritySearch, Handler: h.StartGame, Help: `"play a game"`},
		Entry{Pattern: "play", Handler: h.PlayYouTube},
		Entry{Pattern: "write", Handler: h.Dictate, Help: `"write [text]"`},
		Entry{Pattern: "type", Handler: h.Dictate},
		Entry{Pattern: "guess", Handler: h.PlayGuess, Help: `"guess the number"`},
		Entry{Pattern: "rock paper scissors", Priority: prioritySearch, Handler: h.PlayRPS, Help: `"rock paper scissors"`},
		Entry{Pattern: "rock", Handler: h.PlayRPS},
		Entry{Pattern: "paper", Handler: h.PlayRPS},
		Entry{Pattern: "scissors", Handler: h.PlayRPS},
	)
}

// ── Informational ────────────────────────────────────────────────

// Time speaks the current wall-clock time.
func (h *Handlers) Time(_ context.Context, _ string) (string, error) {
	return "The current time is " + h.now().Format("3:04 PM"), nil
}

// Date speaks today's date.
func (h *Handlers) Date(_ context.Context, _ string) (string, error) {
	return "Today is " + h.now().Format("Monday, January 2, 2006"), nil
}

// Greet answers with a time-of-day greeting.
func (h *Handlers) Greet(_ context.Context, _ string) (string, error) {
	switch hour := h.now().Hour(); {
	case hour < 12:
		return "Good morning!", nil
	case hour < 18:
		return "Good afternoon!", nil
	default:
		return "Good evening!", nil
	}
}

// Help prints the command list to the display and confirms by voice.
func (h *Handlers) Help(_ context.Context, _ string) (string, error) {
	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, e := range builtinHelp {
		b.WriteString("  " + e + "\n")
	}
	h.notify(b.String())
	return "Showing help. Check the screen for the complete list of commands.", nil
}

var builtinHelp = []string{
	`"what is the time" / "what is the date"`,
	`"what is the weather"`,
	`"open [url]" / "open [application]"`,
	`"search for [topic]"`,
	`"research [topic]" / "tell me about [topic]"`,
	`"execute [shell command]"`,
	`"play [query] on youtube"`,
	`"write [text]"`,
	`"play a game" (rock paper scissors, guess the number)`,
	`"stop talking"`,
	`"help"`,
}

// ── Web ──────────────────────────────────────────────────────────

// urlPattern pulls URL-shaped tokens out of an utterance: full URLs,
// www-prefixed hosts, or bare domains like "example.com".
var urlPattern = regexp.MustCompile(`(https?://\S+|www\.\S+|\S+\.\S+)`)

// Open opens a URL when the utterance contains one, otherwise treats
// the remainder as an application name.
func (h *Handlers) Open(_ context.Context, cmd string) (string, error) {
	if m := urlPattern.FindString(cmd); m != "" {
		if err := util.OpenURL(m); err != nil {
			return "", fmt.Errorf("could not open %s: %w", m, err)
		}
		return "Opening " + m, nil
	}
	name := stripWords(cmd, "open", "app", "application", "the")
	if name == "" {
		return "Please provide a URL or application name.", nil
	}
	if err := util.OpenApplication(name); err != nil {
		return "Could not find or open " + name, nil
	}
	return "Opening " + name, nil
}

// LaunchApp launches an application by name.
func (h *Handlers) LaunchApp(_ context.Context, cmd string) (string, error) {
	name := stripWords(cmd, "open", "app", "launch", "start", "the")
	if name == "" {
		return "Which application should I open?", nil
	}
	if err := util.OpenApplication(name); err != nil {
		return "Could not find or open " + name, nil
	}
	return "Opening " + name, nil
}

// Search runs a web search and lists the top hits on the display.
func (h *Handlers) Search(ctx context.Context, cmd string) (string, error) {
	topic := stripWords(cmd, "search", "for", "the", "web")
	if topic == "" {
		return "What should I search for?", nil
	}
	results, err := h.web.Search(ctx, topic, 3)
	if err != nil {
		h.log.Warn("command: search failed: %v", err)
		return "Could not find any results", nil
	}
	if len(results) == 0 {
		return "Could not find any results", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Results for %q:\n", topic)
	for i, r := range results {
		fmt.Fprintf(&b, "  %d. %s\n     %s\n", i+1, r.Title, r.URL)
	}
	h.notify(b.String())
	return "Found results for " + topic, nil
}

// Research searches and reads the top result titles aloud.
func (h *Handlers) Research(ctx context.Context, cmd string) (string, error) {
	topic := stripWords(cmd, "research", "tell", "me", "about", "what", "is")
	if topic == "" {
		return "What would you like to know about?", nil
	}
	results, err := h.web.Search(ctx, topic, 5)
	if err != nil {
		h.log.Warn("command: research failed: %v", err)
		return "I had trouble connecting to the internet to find that.", nil
	}
	if len(results) == 0 {
		return "Could not find research results", nil
	}
	titles := make([]string, 0, 3)
	for _, r := range results[:min(3, len(results))] {
		titles = append(titles, r.Title)
		h.notify("- " + r.Title + "\n  " + r.URL)
	}
	return "Here is what I found about " + topic + ". " + strings.Join(titles, ". "), nil
}

// Weather speaks the current conditions.
func (h *Handlers) Weather(ctx context.Context, _ string) (string, error) {
	report, err := h.web.Weather(ctx)
	if err != nil {
		h.log.Warn("command: weather failed: %v", err)
		return "Could not retrieve weather information", nil
	}
	return report, nil
}

// PlayYouTube opens a YouTube search for the spoken query.
func (h *Handlers) PlayYouTube(_ context.Context, cmd string) (string, error) {
	query := stripWords(cmd, "play", "youtube", "on", "search", "video")
	if query == "" {
		return "What would you like me to play?", nil
	}
	if err := util.OpenURL(util.YouTubeSearchURL(query)); err != nil {
		return "", fmt.Errorf("could not open YouTube: %w", err)
	}
	return "Playing " + query + " on YouTube.", nil
}

// ── System ───────────────────────────────────────────────────────

// Execute runs a shell command and speaks its output.
func (h *Handlers) Execute(ctx context.Context, cmd string) (string, error) {
	shellCmd := cmd
	if idx := strings.Index(cmd, "execute"); idx >= 0 {
		shellCmd = strings.TrimSpace(cmd[idx+len("execute"):])
	}
	if shellCmd == "" {
		return "What command should I execute?", nil
	}
	h.log.Info("command: executing %q", shellCmd)
	return util.ExecuteCommand(ctx, shellCmd), nil
}

// Dictate echoes dictated text back and mirrors it on the display.
func (h *Handlers) Dictate(_ context.Context, cmd string) (string, error) {
	text := stripWords(cmd, "write", "type")
	if text == "" {
		return "What should I write?", nil
	}
	h.notify("Dictation: " + text)
	return "Noted: " + text, nil
}

// Silence interrupts in-flight speech and clears the queue.
func (h *Handlers) Silence(_ context.Context, _ string) (string, error) {
	h.voice.StopSpeaking()
	return "", nil
}

// ── Games ────────────────────────────────────────────────────────

// StartGame offers the available games.
func (h *Handlers) StartGame(_ context.Context, _ string) (string, error) {
	return "I have two games: Guess the Number or Rock Paper Scissors. Which one do you want?", nil
}

// PlayGuess starts a number guessing round.
func (h *Handlers) PlayGuess(_ context.Context, cmd string) (string, error) {
	if n, ok := firstNumber(cmd); ok {
		target := h.rng.Intn(10) + 1
		if n == target {
			return fmt.Sprintf("You got it! It was %d.", target), nil
		}
		return fmt.Sprintf("Not quite. I was thinking of %d.", target), nil
	}
	return "I am thinking of a number between 1 and 10. Can you guess it?", nil
}

// PlayRPS plays one round of rock paper scissors.
func (h *Handlers) PlayRPS(_ context.Context, cmd string) (string, error) {
	options := []string{"rock", "paper", "scissors"}
	botChoice := options[h.rng.Intn(len(options))]

	var userChoice string
	switch {
	case strings.Contains(cmd, "rock"):
		userChoice = "rock"
	case strings.Contains(cmd, "paper"):
		userChoice = "paper"
	case strings.Contains(cmd, "scissors"):
		userChoice = "scissors"
	}
	if userChoice == "" {
		return "Please choose rock, paper, or scissors to play!", nil
	}

	switch {
	case userChoice == botChoice:
		return fmt.Sprintf("It's a tie! I also chose %s.", botChoice), nil
	case userChoice == "rock" && botChoice == "scissors",
		userChoice == "paper" && botChoice == "rock",
		userChoice == "scissors" && botChoice == "paper":
		return fmt.Sprintf("You win! I chose %s.", botChoice), nil
	default:
		return fmt.Sprintf("I win! I chose %s.", botChoice), nil
	}
}

// ── Helpers ──────────────────────────────────────────────────────

// stripWords removes the given filler words from the utterance and
// returns what remains.
func stripWords(cmd string, words ...string) string {
	fields := strings.Fields(cmd)
	var kept []string
outer:
	for _, f := range fields {
		for _, w := range words {
			if f == w {
				continue outer
			}
		}
		kept = append(kept, f)
	}
	return strings.TrimSpace(strings.Join(kept, " "))
}

// firstNumber returns the first integer token in the utterance.
func firstNumber(cmd string) (int, bool) {
	for _, f := range strings.Fields(cmd) {
		n := 0
		ok := len(f) > 0
		for _, r := range f {
			if r < '0' || r > '9' {
				ok = false
				break
			}
			n = n*10 + int(r-'0')
		}
		if ok {
			return n, true
		}
	}
	return 0, false
}
