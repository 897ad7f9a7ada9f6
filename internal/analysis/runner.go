package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Kind selects one of the fixed analysis scripts.
type Kind string

const (
	KindEye     Kind = "eye"
	KindEmotion Kind = "emotion"
	KindPosture Kind = "posture"
	KindVoice   Kind = "voice"
)

var (
	// ErrUnknownKind is returned for analysis kinds with no script mapping.
	ErrUnknownKind = errors.New("unknown analysis kind")
	// ErrProcessFailed is returned when an analysis process exits abnormally.
	// Callers surface it as a generic failure without process detail.
	ErrProcessFailed = errors.New("analysis process failed")
)

// The scripts take no per-run arguments; each works off the latest
// recording by its own convention.
var scripts = map[Kind]string{
	KindEye:     "eye_detection.py",
	KindEmotion: "emotion_detection.py",
	KindPosture: "body_posture.py",
	KindVoice:   "evaluate_audio.py",
}

// Runner executes one analysis tool per call and relays its output.
type Runner interface {
	Run(ctx context.Context, kind Kind) ([]string, error)
}

type Config struct {
	Python        string
	ScriptsDir    string
	MaxConcurrent int
	Timeout       time.Duration
	Logger        *logrus.Logger
}

type runner struct {
	cfg Config
	sem chan struct{}
}

func NewRunner(cfg Config) Runner {
	if cfg.Python == "" {
		cfg.Python = "python"
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &runner{
		cfg: cfg,
		sem: make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Run spawns the script for kind and captures its stdout. Concurrent spawns
// are bounded by the semaphore; waiting callers give up when their request
// context is cancelled.
func (r *runner) Run(ctx context.Context, kind Kind) ([]string, error) {
	script, ok := scripts[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-r.sem }()

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.cfg.Python, filepath.Join(r.cfg.ScriptsDir, script))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		r.cfg.Logger.Warnf("analysis %s failed after %s: %v (stderr: %s)",
			kind, time.Since(start).Round(time.Millisecond), err, strings.TrimSpace(stderr.String()))
		return nil, fmt.Errorf("%w: %s", ErrProcessFailed, kind)
	}

	r.cfg.Logger.Infof("analysis %s finished in %s", kind, time.Since(start).Round(time.Millisecond))

	out := strings.TrimRight(stdout.String(), "\n")
	if out == "" {
		return []string{}, nil
	}
	return strings.Split(out, "\n"), nil
}
