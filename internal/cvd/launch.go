// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package cvd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/forkbombeu/cvdctl/internal/selector"
)

func run(ctx context.Context, env Env, bin string, args ...string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = io.MultiWriter(&buf, newCommandLogWriter(env, bin, args))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %v failed: %v\n%s", bin, args, err, buf.String())
	}
	return nil
}

// LaunchArgs renders set as next-stage selector flags followed by extra.
// Range sets keep the base+count form so the launcher sees the same
// addressing mode the user asked for.
func LaunchArgs(set selector.Set, extra []string) []string {
	var args []string
	if base, count, ok := set.Range(); ok {
		args = []string{
			fmt.Sprintf("--%s=%d", selector.FlagBaseInstanceNum, base),
			fmt.Sprintf("--%s=%d", selector.FlagNumInstances, count),
		}
	} else {
		args = []string{
			fmt.Sprintf("--%s=%s", selector.FlagInstanceNums, set.String()),
			fmt.Sprintf("--%s=%d", selector.FlagNumInstances, set.Len()),
		}
	}
	return append(args, extra...)
}

// checkExtraArgs rejects pass-through arguments that name a selector flag.
// The selection is already rendered by LaunchArgs and a second copy would
// contradict it.
func checkExtraArgs(extra []string) error {
	for _, arg := range extra {
		if !strings.HasPrefix(arg, "-") {
			continue
		}
		name, _, _ := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		switch name {
		case selector.FlagNumInstances, selector.FlagBaseInstanceNum, selector.FlagInstanceNums:
			return &selector.Error{
				Kind:   selector.KindConflictingSource,
				Detail: fmt.Sprintf("launcher argument %q duplicates a selector flag; pass it to cvdctl instead", arg),
			}
		}
	}
	return nil
}

// launchEnviron drops the legacy instance variable so it cannot disagree with
// the explicit flags handed to the launcher.
func launchEnviron(environ []string) []string {
	out := make([]string, 0, len(environ))
	prefix := selector.EnvInstance + "="
	for _, kv := range environ {
		if strings.HasPrefix(kv, prefix) {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// Launch stops any running devices, then runs launch_cvd for set and waits
// for it to exit. It returns the path of the launcher output log.
func Launch(env Env, set selector.Set, extraArgs ...string) (string, error) {
	ctx, span := startSpan(
		env,
		"cvd.Launch",
		attribute.String("instances", set.String()),
		attribute.Int("num_instances", set.Len()),
		attribute.String("mode", set.Mode().String()),
	)
	defer span.End()
	if set.Len() == 0 {
		err := errors.New("no instances selected")
		recordSpanError(span, err)
		return "", err
	}
	if err := checkExtraArgs(extraArgs); err != nil {
		recordSpanError(span, err)
		return "", err
	}
	logEvent(env, "launch requested", "instances", set.String(), "mode", set.Mode().String())

	if err := CheckPorts(env, set); err != nil {
		recordSpanError(span, err)
		return "", err
	}

	// stop_cvd exits non-zero when nothing is running.
	_ = run(ctx, env, env.StopCVD)

	logPath := filepath.Join(os.TempDir(), fmt.Sprintf("launch_cvd-%d.log", set.IDs()[0]))
	logFile, err := os.Create(logPath)
	if err != nil {
		recordSpanError(span, err)
		return "", fmt.Errorf("open log: %w", err)
	}
	defer logFile.Close()
	logWriter := newLauncherLogWriter(env, set.String())

	args := LaunchArgs(set, extraArgs)
	cmd := exec.CommandContext(ctx, env.LaunchCVD, args...)
	cmd.Dir = env.HostDir
	// One writer for both streams: exec then copies through a single pipe.
	output := io.MultiWriter(logFile, logWriter)
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.Env = launchEnviron(os.Environ())

	if err := cmd.Start(); err != nil {
		recordSpanError(span, err)
		logEvent(env, "launcher start failed", "instances", set.String(), "error", err, "log_path", logPath)
		return logPath, fmt.Errorf("launcher start: %w", err)
	}
	span.SetAttributes(
		attribute.Int("pid", cmd.Process.Pid),
		attribute.String("log_path", logPath),
	)
	logEvent(
		env,
		"launcher started",
		"instances",
		set.String(),
		"pid",
		cmd.Process.Pid,
		"log_path",
		logPath,
	)

	if err := cmd.Wait(); err != nil {
		recordSpanError(span, err)
		logEvent(env, "launcher failed", "instances", set.String(), "error", err, "log_path", logPath)
		return logPath, fmt.Errorf("%s exited: %w\nlauncher log: %s", filepath.Base(env.LaunchCVD), err, logPath)
	}
	logEvent(env, "launcher finished", "instances", set.String(), "log_path", logPath)
	return logPath, nil
}

// Stop runs stop_cvd.
func Stop(env Env) error {
	ctx, span := startSpan(env, "cvd.Stop")
	defer span.End()
	logEvent(env, "stop requested", "command", env.StopCVD)
	if err := run(ctx, env, env.StopCVD); err != nil {
		recordSpanError(span, err)
		return err
	}
	logEvent(env, "devices stopped")
	return nil
}
