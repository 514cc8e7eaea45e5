package notifier

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// URLOpener opens dashboard links for the user.
type URLOpener interface {
	Open(ctx context.Context, url string) error
}

// CommandOpener runs an external command with the URL as its last argument,
// e.g. "xdg-open" or "open".
type CommandOpener struct {
	command []string
}

// NewCommandOpener parses a command line such as "xdg-open".
func NewCommandOpener(command string) (*CommandOpener, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("open command is required")
	}
	return &CommandOpener{command: fields}, nil
}

// Open starts the command and waits for it to exit.
func (o *CommandOpener) Open(ctx context.Context, url string) error {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("refusing to open non-http url %q", url)
	}
	args := append(append([]string(nil), o.command[1:]...), url)
	cmd := exec.CommandContext(ctx, o.command[0], args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("open %s: %w: %s", url, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// LogOpener logs the URL instead of opening it.
type LogOpener struct {
	log zerolog.Logger
}

// NewLogOpener creates a log-only opener.
func NewLogOpener(log zerolog.Logger) *LogOpener {
	return &LogOpener{log: log}
}

// Open logs the URL.
func (o *LogOpener) Open(ctx context.Context, url string) error {
	o.log.Info().Str("url", url).Msg("open dashboard")
	return nil
}
