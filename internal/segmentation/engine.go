// Package segmentation drives the external vertebra segmentation engine and
// turns its per-label NIfTI outputs into one labeled mask.
package segmentation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"
)

// Engine segments the CT slices found in inputDir and writes one
// vertebrae_<LABEL>.nii.gz file per label under outputPrefix.
type Engine interface {
	Run(ctx context.Context, inputDir, outputPrefix string) error
}

// CommandEngine runs a segmentation command line, TotalSegmentator by default.
type CommandEngine struct {
	Command string
	Args    []string // appended after -i <input> -o <prefix>
	Timeout time.Duration
	Logger  *logrus.Logger
}

// NewCommandEngine returns an engine invoking command with an optional
// per-run timeout (0 disables it).
func NewCommandEngine(command string, args []string, timeout time.Duration, logger *logrus.Logger) *CommandEngine {
	if command == "" {
		command = "TotalSegmentator"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CommandEngine{Command: command, Args: args, Timeout: timeout, Logger: logger}
}

func (e *CommandEngine) Run(ctx context.Context, inputDir, outputPrefix string) error {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	args := append([]string{"-i", inputDir, "-o", outputPrefix}, e.Args...)
	cmd := exec.CommandContext(ctx, e.Command, args...)
	out := e.Logger.WriterLevel(logrus.DebugLevel)
	defer func() { _ = out.Close() }()
	cmd.Stdout = out
	cmd.Stderr = out

	e.Logger.WithFields(logrus.Fields{
		"command": e.Command,
		"input":   inputDir,
		"output":  outputPrefix,
	}).Info("Running segmentation engine")

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &UnavailableError{Path: outputPrefix, Reason: fmt.Sprintf("engine timed out after %s", e.Timeout), Err: err}
		}
		return &UnavailableError{Path: outputPrefix, Reason: "engine failed", Err: err}
	}
	e.Logger.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("Segmentation engine finished")
	return nil
}

// PrecomputedEngine reuses label volumes from an earlier engine run. It only
// checks that the output prefix exists.
type PrecomputedEngine struct{}

func (PrecomputedEngine) Run(ctx context.Context, inputDir, outputPrefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(outputPrefix)
	if err != nil {
		return &UnavailableError{Path: outputPrefix, Reason: "no precomputed segmentation", Err: err}
	}
	if !info.IsDir() {
		return &UnavailableError{Path: outputPrefix, Reason: "not a directory"}
	}
	return nil
}
