package render

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Runner executes the rasterizer. Tests substitute a fake that writes PNGs directly.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// execRunner runs the rasterizer as a child process, killed when ctx ends.
type execRunner struct {
	logger *slog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	attrs := []any{
		"cmd", name,
		"args", strings.Join(args, " "),
		"duration_ms", time.Since(start).Milliseconds(),
	}
	switch {
	case ctx.Err() != nil:
		r.logger.Debug("render.exec.canceled", append(attrs, "error", ctx.Err())...)
	case err != nil:
		r.logger.Error("render.exec.failed", append(attrs, "error", err, "stderr", truncate(stderr.String(), 8<<10))...)
	default:
		r.logger.Debug("render.exec.ok", append(attrs, "stderr_bytes", stderr.Len())...)
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

// truncate caps s at max bytes for logs and error messages.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
