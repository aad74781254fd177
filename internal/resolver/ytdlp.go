// Package resolver turns item references into metadata and signed variant URLs
// by shelling out to yt-dlp.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/hszk-dev/vidrelay/internal/domain/model"
	"github.com/hszk-dev/vidrelay/internal/domain/repository"
)

// ErrEmptyMetadata is returned when yt-dlp succeeds but describes nothing usable.
var ErrEmptyMetadata = errors.New("yt-dlp returned empty metadata")

// CommandRunner executes external commands and returns stdout bytes.
type CommandRunner func(ctx context.Context, binary string, args ...string) ([]byte, error)

// YTDLP resolves references using the yt-dlp CLI.
type YTDLP struct {
	Binary  string
	Args    []string
	Run     CommandRunner
	Timeout time.Duration
}

// Compile-time verification that YTDLP implements repository.Resolver.
var _ repository.Resolver = (*YTDLP)(nil)

// NewYTDLP constructs a resolver that shells out to binary.
func NewYTDLP(binary string, timeout time.Duration) *YTDLP {
	if strings.TrimSpace(binary) == "" {
		binary = "yt-dlp"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &YTDLP{
		Binary:  binary,
		Args:    []string{"--dump-single-json", "--no-warnings", "--no-playlist", "--skip-download"},
		Run:     defaultCommandRunner,
		Timeout: timeout,
	}
}

// Validate reports whether reference names a recognizable item.
func (y *YTDLP) Validate(reference string) bool {
	_, err := model.NormalizeReference(reference)
	return err == nil
}

// CanonicalID returns the item id for reference.
func (y *YTDLP) CanonicalID(reference string) (model.ItemID, error) {
	return model.NormalizeReference(reference)
}

// Resolve runs yt-dlp for reference and maps its formats to variants.
func (y *YTDLP) Resolve(ctx context.Context, reference string) (*model.ResolutionResult, error) {
	id, err := model.NormalizeReference(reference)
	if err != nil {
		return nil, err
	}
	if y.Run == nil {
		y.Run = defaultCommandRunner
	}

	execCtx, cancel := context.WithTimeout(ctx, y.Timeout)
	defer cancel()

	args := append([]string{}, y.Args...)
	args = append(args, watchURL(id))

	out, err := y.Run(execCtx, y.Binary, args...)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp fetch: %w", err)
	}

	var p payload
	if err := json.Unmarshal(out, &p); err != nil {
		return nil, fmt.Errorf("parse yt-dlp response: %w", err)
	}
	if p.Title == "" && len(p.Formats) == 0 {
		return nil, ErrEmptyMetadata
	}

	return p.toResult(), nil
}

// watchURL rebuilds a canonical URL so yt-dlp never sees playlist or tracking parameters.
func watchURL(id model.ItemID) string {
	return "https://www.youtube.com/watch?v=" + id.String()
}

func defaultCommandRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, err
	}
	return out, nil
}
