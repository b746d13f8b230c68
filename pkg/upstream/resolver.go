package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/m1k1o/go-hlscache/internal/utils"
	"github.com/m1k1o/go-hlscache/pkg/segcache"
)

// Resolve returns the upstream media playlist url of the session. Static
// sources are checked first, then the template, then the command.
func (s *SourceCtx) Resolve(ctx context.Context, sessionID string) (string, error) {
	config := s.getConfig()

	if source, ok := config.Sources[sessionID]; ok {
		return source, nil
	}

	// keys may come lowercased from config file
	if source, ok := config.Sources[strings.ToLower(sessionID)]; ok {
		return source, nil
	}

	if config.Template != "" {
		return expand(config.Template, sessionID), nil
	}

	if config.Command != "" {
		return s.resolveCommand(ctx, config, sessionID)
	}

	return "", fmt.Errorf("%w: session %s has no source", segcache.ErrNotFound, sessionID)
}

func (s *SourceCtx) resolveCommand(ctx context.Context, config Config, sessionID string) (string, error) {
	logger := s.logger.With().Str("session", sessionID).Str("command", config.Command).Logger()

	ctx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	args := make([]string, len(config.Args))
	for i, arg := range config.Args {
		args[i] = expand(arg, sessionID)
	}

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, config.Command, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = utils.LogWriter(logger, zerolog.DebugLevel)

	logger.Debug().Strs("args", args).Msg("running resolver command")

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: resolver command exceeded %v", segcache.ErrTimeout, config.Timeout)
		}
		return "", fmt.Errorf("%w: resolver command failed: %v", segcache.ErrUpstreamFetchFailed, err)
	}

	// command may print more urls, first one wins
	output := strings.TrimSpace(stdout.String())
	if i := strings.IndexByte(output, '\n'); i >= 0 {
		output = strings.TrimSpace(output[:i])
	}

	u, err := url.Parse(output)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: resolver command returned invalid url %q", segcache.ErrUpstreamFetchFailed, output)
	}

	logger.Debug().Str("url", output).Msg("resolved playlist url")
	return output, nil
}
