// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package cvd

import (
	"context"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
)

const (
	defaultADBBasePort = 6520
	defaultVNCBasePort = 6444
)

type Env struct {
	HostDir     string // CVD_HOST_DIR (default ANDROID_HOST_OUT, then the working directory)
	HomeDir     string // CVD_HOME (default ~)
	LaunchCVD   string // launch_cvd
	StopCVD     string // stop_cvd
	ADBBasePort int    // ADB port of instance 1
	VNCBasePort int    // VNC port of instance 1
	// CorrelationID is used to tie logs to a specific workflow/activity.
	CorrelationID string
	// Context is used to parent OpenTelemetry spans.
	Context context.Context
}

func Detect() Env {
	usr, _ := user.Current()
	home := ""
	if usr != nil {
		home = usr.HomeDir
	} else if h := os.Getenv("HOME"); h != "" {
		home = h
	}

	cwd, _ := os.Getwd()
	host := getenv("CVD_HOST_DIR", getenv("ANDROID_HOST_OUT", cwd))
	cvdHome := getenv("CVD_HOME", home)

	env := Env{
		HostDir:       host,
		HomeDir:       cvdHome,
		ADBBasePort:   defaultADBBasePort,
		VNCBasePort:   defaultVNCBasePort,
		CorrelationID: os.Getenv("CVDCTL_CORRELATION_ID"),
		Context:       context.Background(),
	}
	env.LaunchCVD = env.LauncherPath()
	env.StopCVD = env.StopperPath()
	return env
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// RuntimeDir is the per-instance runtime directory the launcher populates.
func (env Env) RuntimeDir(instance int) string {
	return filepath.Join(env.HomeDir, "cuttlefish_runtime."+strconv.Itoa(instance))
}

// LauncherPath is the launch_cvd binary inside the host package.
func (env Env) LauncherPath() string { return filepath.Join(env.HostDir, "bin", "launch_cvd") }

// StopperPath is the stop_cvd binary inside the host package.
func (env Env) StopperPath() string { return filepath.Join(env.HostDir, "bin", "stop_cvd") }
