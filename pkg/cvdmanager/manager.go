// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package cvdmanager

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/forkbombeu/cvdctl/internal/cvd"
	"github.com/forkbombeu/cvdctl/internal/selector"
)

// Set is a resolved, ordered set of instance numbers.
type Set = selector.Set

// ErrorKind identifies which selector rule a Resolve call violated.
type ErrorKind = selector.Kind

const (
	KindConflictingSource   = selector.KindConflictingSource
	KindCountMismatch       = selector.KindCountMismatch
	KindDuplicateInstanceID = selector.KindDuplicateInstanceID
	KindInvalidRange        = selector.KindInvalidRange
	KindMalformedInput      = selector.KindMalformedInput
)

// Sentinel errors, matched with errors.Is.
var (
	ErrConflictingSource   = selector.ErrConflictingSource
	ErrCountMismatch       = selector.ErrCountMismatch
	ErrDuplicateInstanceID = selector.ErrDuplicateInstanceID
	ErrInvalidRange        = selector.ErrInvalidRange
	ErrMalformedInput      = selector.ErrMalformedInput
)

// KindOf returns the selector rule violated by err, if any.
func KindOf(err error) ErrorKind { return selector.KindOf(err) }

const tracerName = "cvdmanager"

// Manager provides high-level instance operations.
type Manager struct {
	env cvd.Env
}

// New creates a new Manager with auto-detected environment.
func New() *Manager {
	return &Manager{
		env: cvd.Detect(),
	}
}

// NewWithCorrelationID creates a new Manager with a correlation ID for structured logs.
func NewWithCorrelationID(correlationID string) *Manager {
	return NewWithContextAndCorrelationID(context.Background(), correlationID)
}

// NewWithContext creates a new Manager with a custom context for tracing.
func NewWithContext(ctx context.Context) *Manager {
	return NewWithContextAndCorrelationID(ctx, "")
}

// NewWithContextAndCorrelationID creates a new Manager with a custom context and correlation ID.
func NewWithContextAndCorrelationID(ctx context.Context, correlationID string) *Manager {
	env := cvd.Detect()
	if ctx == nil {
		ctx = context.Background()
	}
	env.Context = ctx
	env.CorrelationID = correlationID
	return &Manager{
		env: env,
	}
}

// NewWithEnv creates a new Manager with custom environment configuration.
// Empty binary paths default to bin/launch_cvd and bin/stop_cvd under HostDir.
func NewWithEnv(env Environment) *Manager {
	ctx := env.Context
	if ctx == nil {
		ctx = context.Background()
	}
	detected := cvd.Detect()
	e := cvd.Env{
		HostDir:       env.HostDir,
		HomeDir:       env.HomeDir,
		LaunchCVD:     env.LaunchBin,
		StopCVD:       env.StopBin,
		ADBBasePort:   env.ADBBasePort,
		VNCBasePort:   env.VNCBasePort,
		CorrelationID: env.CorrelationID,
		Context:       ctx,
	}
	if e.HostDir == "" {
		e.HostDir = detected.HostDir
	}
	if e.HomeDir == "" {
		e.HomeDir = detected.HomeDir
	}
	if e.LaunchCVD == "" {
		e.LaunchCVD = e.LauncherPath()
	}
	if e.StopCVD == "" {
		e.StopCVD = e.StopperPath()
	}
	return &Manager{env: e}
}

// Environment holds configuration for the host package and runtime paths.
type Environment struct {
	HostDir       string          // Host package directory containing bin/
	HomeDir       string          // Parent of cuttlefish_runtime.<n> directories
	LaunchBin     string          // Path to launch_cvd (default: <HostDir>/bin/launch_cvd)
	StopBin       string          // Path to stop_cvd (default: <HostDir>/bin/stop_cvd)
	ADBBasePort   int             // ADB port of instance 1 (default: 6520)
	VNCBasePort   int             // VNC port of instance 1 (default: 6444)
	CorrelationID string          // Correlation ID for log enrichment
	Context       context.Context // Context for tracing
}

// SelectorOptions mirrors the selector flags. Nil fields are absent.
type SelectorOptions struct {
	NumInstances    *int  // --num_instances
	BaseInstanceNum *int  // --base_instance_num
	InstanceNums    []int // --instance_nums (nil = absent)
	EnvInstance     *int  // CUTTLEFISH_INSTANCE
}

// InstanceInfo contains addresses and runtime state of one instance.
type InstanceInfo struct {
	Instance     int    // Instance number
	Name         string // cvd-<n>
	ADBPort      int    // Host ADB port
	VNCPort      int    // Host VNC port
	VsockCID     int    // Guest vsock CID
	ADBSerial    string // Serial for adb connect
	RuntimeDir   string // cuttlefish_runtime.<n>
	LogPath      string // Launcher log inside the runtime dir
	LogSizeBytes int64  // Size of the launcher log
	PortsInUse   bool   // Whether the host ports are currently bound
}

// LaunchOptions contains options for launching instances.
type LaunchOptions struct {
	Instances Set      // Resolved instances (required)
	ExtraArgs []string // Appended to the launcher command line
}

// Int returns a pointer to v, for filling SelectorOptions.
func Int(v int) *int { return &v }

func (o SelectorOptions) input() selector.Input {
	var in selector.Input
	if o.NumInstances != nil {
		in.NumInstances = selector.Some(*o.NumInstances)
	}
	if o.BaseInstanceNum != nil {
		in.BaseInstanceNum = selector.Some(*o.BaseInstanceNum)
	}
	if o.InstanceNums != nil {
		in.InstanceNums = selector.Some(append([]int(nil), o.InstanceNums...))
	}
	if o.EnvInstance != nil {
		in.EnvInstance = selector.Some(*o.EnvInstance)
	}
	return in
}

func (m *Manager) startSpan(name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if m.env.CorrelationID != "" {
		attrs = append(attrs, attribute.String("correlation_id", m.env.CorrelationID))
	}
	ctx := m.env.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// Resolve validates the selector options and returns the instance set.
func (m *Manager) Resolve(opts SelectorOptions) (Set, error) {
	_, span := m.startSpan("cvdmanager.Resolve")
	defer span.End()
	set, err := selector.Resolve(opts.input())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("error_kind", selector.KindOf(err).String()))
		return Set{}, err
	}
	span.SetAttributes(
		attribute.String("mode", set.Mode().String()),
		attribute.Int("num_instances", set.Len()),
		attribute.IntSlice("instance_ids", set.IDs()),
		attribute.Bool("requested", set.Requested()),
	)
	return set, nil
}

// Instances returns addresses and runtime state for every instance in set.
func (m *Manager) Instances(set Set) []InstanceInfo {
	infos := cvd.Describe(m.env, set)
	result := make([]InstanceInfo, len(infos))
	for i, info := range infos {
		result[i] = InstanceInfo{
			Instance:     info.Instance,
			Name:         info.Name,
			ADBPort:      info.ADBPort,
			VNCPort:      info.VNCPort,
			VsockCID:     info.VsockCID,
			ADBSerial:    info.ADBSerial,
			RuntimeDir:   info.RuntimeDir,
			LogPath:      info.LogPath,
			LogSizeBytes: info.LogSizeBytes,
			PortsInUse:   info.PortsInUse,
		}
	}
	return result
}

// Launch stops running devices, then runs launch_cvd for the given instances.
// It returns the launcher output log path.
func (m *Manager) Launch(opts LaunchOptions) (logPath string, err error) {
	if opts.Instances.Len() == 0 {
		return "", errors.New("no instances to launch")
	}
	return cvd.Launch(m.env, opts.Instances, opts.ExtraArgs...)
}

// Stop stops all devices started from the host package.
func (m *Manager) Stop() error {
	return cvd.Stop(m.env)
}
