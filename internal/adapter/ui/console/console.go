// Package console provides an interactive terminal front end for the session engine.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/tejashwikalptaru/mantra/internal/domain"
)

// Engine is the part of the session engine the console drives.
type Engine interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	Seek(ctx context.Context, position time.Duration) error
	SetMix(ctx context.Context, mix domain.Mix) error
	GetState() domain.Snapshot
	Subscribe(listener func(domain.Snapshot)) func()
}

// Sessions loads bundles by session id.
type Sessions interface {
	LoadSession(ctx context.Context, sessionID string) error
	Sessions() ([]string, error)
}

// Options configures the terminal. Zero values use the process stdin and stdout.
type Options struct {
	Prompt      string
	HistoryFile string
	Stdin       io.ReadCloser
	Stdout      io.Writer
}

// errUsage marks input the console could not parse.
var errUsage = errors.New("usage")

const helpText = `commands:
  load <session>          load a session bundle
  play                    start or resume (starts the pre-roll if nothing is loaded yet)
  pause                   pause playback
  stop                    stop and rewind
  seek <seconds>          move every layer to a position
  mix <aff> <tone> <bg>   set layer gains in [0,1]
  state                   print the current snapshot
  list                    list available sessions
  help                    show this text
  quit                    exit`

// Console reads commands from a terminal and prints snapshot changes.
type Console struct {
	logger   *slog.Logger
	engine   Engine
	sessions Sessions
	opts     Options

	mu         sync.Mutex
	out        io.Writer
	lastStatus domain.Status
	lastError  string
}

// command is one parsed console line.
type command struct {
	name     string
	session  string
	position time.Duration
	mix      domain.Mix
}

// New creates a console for engine.
func New(logger *slog.Logger, engine Engine, sessions Sessions, opts Options) *Console {
	if opts.Prompt == "" {
		opts.Prompt = "mantra> "
	}
	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}
	return &Console{
		logger:   logger,
		engine:   engine,
		sessions: sessions,
		opts:     opts,
		out:      out,
	}
}

// Run reads and executes commands until quit, end of input or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.opts.Prompt,
		HistoryFile:     c.opts.HistoryFile,
		Stdin:           c.opts.Stdin,
		Stdout:          c.opts.Stdout,
		AutoComplete:    c.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("failed to open console: %w", err)
	}
	defer rl.Close()

	c.mu.Lock()
	c.out = rl.Stdout()
	c.mu.Unlock()

	unsubscribe := c.engine.Subscribe(c.render)
	defer unsubscribe()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = rl.Close()
		case <-done:
		}
	}()

	c.printf("%s\n", "type help for commands")
	for {
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if line == "" {
				return nil
			}
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		quit, err := c.Execute(ctx, line)
		if err != nil {
			c.printf("error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// Execute runs one console line. It reports whether the console should exit.
func (c *Console) Execute(ctx context.Context, line string) (bool, error) {
	cmd, err := parseCommand(line)
	if err != nil {
		return false, err
	}

	switch cmd.name {
	case "":
		return false, nil
	case "quit":
		return true, nil
	case "help":
		c.printf("%s\n", helpText)
	case "state":
		c.printf("%s\n", formatSnapshot(c.engine.GetState()))
	case "list":
		ids, err := c.sessions.Sessions()
		if err != nil {
			return false, err
		}
		if len(ids) == 0 {
			c.printf("no sessions\n")
		}
		for _, id := range ids {
			c.printf("  %s\n", id)
		}
	case "load":
		return false, c.sessions.LoadSession(ctx, cmd.session)
	case "play":
		return false, c.engine.Play(ctx)
	case "pause":
		return false, c.engine.Pause(ctx)
	case "stop":
		return false, c.engine.Stop(ctx)
	case "seek":
		return false, c.engine.Seek(ctx, cmd.position)
	case "mix":
		return false, c.engine.SetMix(ctx, cmd.mix)
	}
	return false, nil
}

// render prints status and error changes. Position ticks are not echoed.
func (c *Console) render(snapshot domain.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	errText := ""
	if snapshot.Error != nil {
		errText = snapshot.Error.Message
	}
	if snapshot.Status == c.lastStatus && errText == c.lastError {
		return
	}
	c.lastStatus, c.lastError = snapshot.Status, errText

	_, _ = fmt.Fprintf(c.out, "[%s]\n", formatSnapshot(snapshot))
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func (c *Console) completer() *readline.PrefixCompleter {
	sessionItems := readline.PcItemDynamic(func(string) []string {
		ids, err := c.sessions.Sessions()
		if err != nil {
			return nil
		}
		return ids
	})

	var items []readline.PrefixCompleterInterface
	for _, name := range commandNames() {
		if name == "load" {
			items = append(items, readline.PcItem(name, sessionItems))
			continue
		}
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}

var arity = map[string]int{
	"load": 1, "play": 0, "pause": 0, "stop": 0, "seek": 1,
	"mix": 3, "state": 0, "list": 0, "help": 0, "quit": 0,
}

var aliases = map[string]string{"exit": "quit", "q": "quit", "?": "help", "status": "state", "ls": "list"}

func commandNames() []string {
	names := make([]string, 0, len(arity))
	for name := range arity {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, nil
	}

	name := strings.ToLower(fields[0])
	if alias, ok := aliases[name]; ok {
		name = alias
	}
	args := fields[1:]

	want, ok := arity[name]
	if !ok {
		return command{}, fmt.Errorf("%w: unknown command %q, type help", errUsage, fields[0])
	}
	if len(args) != want {
		return command{}, fmt.Errorf("%w: %s takes %d argument(s)", errUsage, name, want)
	}

	cmd := command{name: name}
	switch name {
	case "load":
		cmd.session = args[0]
	case "seek":
		secs, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return command{}, fmt.Errorf("%w: seek position %q is not a number", errUsage, args[0])
		}
		cmd.position = time.Duration(secs * float64(time.Second))
	case "mix":
		gains := make([]float64, 3)
		for i, arg := range args {
			v, err := strconv.ParseFloat(arg, 64)
			if err != nil || v < 0 || v > 1 {
				return command{}, fmt.Errorf("%w: gain %q must be a number in [0,1]", errUsage, arg)
			}
			gains[i] = v
		}
		cmd.mix = domain.Mix{Affirmations: gains[0], Binaural: gains[1], Background: gains[2]}
	}
	return cmd, nil
}

func formatSnapshot(s domain.Snapshot) string {
	var b strings.Builder
	b.WriteString(string(s.Status))
	if s.SessionID != "" {
		fmt.Fprintf(&b, " session=%s", s.SessionID)
	}
	fmt.Fprintf(&b, " pos=%s", formatClock(s.Position()))
	if s.DurationMs > 0 {
		fmt.Fprintf(&b, "/%s", formatClock(s.Duration()))
	}
	fmt.Fprintf(&b, " mix=%.2f/%.2f/%.2f", s.Mix.Affirmations, s.Mix.Binaural, s.Mix.Background)
	if s.Error != nil {
		fmt.Fprintf(&b, " error=%q", s.Error.Message)
	}
	return b.String()
}

func formatClock(d time.Duration) string {
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
