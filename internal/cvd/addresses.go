// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package cvd

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/forkbombeu/cvdctl/internal/selector"
)

// vsock CIDs 0-2 are reserved by the host.
const vsockCIDOffset = 2

// Addresses are the host-side endpoints owned by one instance.
type Addresses struct {
	Instance  int    `json:"instance"`
	Name      string `json:"name"`
	ADBPort   int    `json:"adb_port"`
	VNCPort   int    `json:"vnc_port"`
	VsockCID  int    `json:"vsock_cid"`
	ADBSerial string `json:"adb_serial"`
}

// InstanceInfo describes a selected instance and its on-disk state.
type InstanceInfo struct {
	Addresses
	RuntimeDir   string `json:"runtime_dir"`
	LogPath      string `json:"log_path"`
	LogSizeBytes int64  `json:"log_size_bytes"`
	PortsInUse   bool   `json:"ports_in_use"`
}

// AddressesFor derives the endpoints of instance n. Every instance is offset
// from instance 1 by n-1. Ports of one kind never repeat, but the ADB and VNC
// ranges can overlap: with the default bases cvd-77's VNC port is cvd-1's
// ADB port. CheckPorts rejects such sets.
func (env Env) AddressesFor(n int) Addresses {
	adbBase := env.ADBBasePort
	if adbBase == 0 {
		adbBase = defaultADBBasePort
	}
	vncBase := env.VNCBasePort
	if vncBase == 0 {
		vncBase = defaultVNCBasePort
	}
	adb := adbBase + n - 1
	return Addresses{
		Instance:  n,
		Name:      fmt.Sprintf("cvd-%d", n),
		ADBPort:   adb,
		VNCPort:   vncBase + n - 1,
		VsockCID:  n + vsockCIDOffset,
		ADBSerial: fmt.Sprintf("0.0.0.0:%d", adb),
	}
}

// Describe reports addresses and runtime state for every instance in set,
// in set order.
func Describe(env Env, set selector.Set) []InstanceInfo {
	_, span := startSpan(
		env,
		"cvd.Describe",
		attribute.String("instances", set.String()),
	)
	defer span.End()

	out := make([]InstanceInfo, 0, set.Len())
	for _, n := range set.IDs() {
		addrs := env.AddressesFor(n)
		dir := env.RuntimeDir(n)
		logPath := filepath.Join(dir, "launcher.log")
		var sz int64
		if st, err := os.Stat(logPath); err == nil {
			sz = st.Size()
		}
		out = append(out, InstanceInfo{
			Addresses:    addrs,
			RuntimeDir:   dir,
			LogPath:      logPath,
			LogSizeBytes: sz,
			PortsInUse:   !isPortFree(addrs.ADBPort) || !isPortFree(addrs.VNCPort),
		})
	}
	return out
}

// CheckPorts fails if two instances in set would share a port, or if any
// port owned by an instance in set is already bound.
func CheckPorts(env Env, set selector.Set) error {
	_, span := startSpan(
		env,
		"cvd.CheckPorts",
		attribute.String("instances", set.String()),
	)
	defer span.End()

	if err := portCollisions(env, set); err != nil {
		recordSpanError(span, err)
		logEvent(env, "instance ports collide", "instances", set.String(), "error", err)
		return err
	}

	var busy []string
	for _, n := range set.IDs() {
		addrs := env.AddressesFor(n)
		for _, port := range []int{addrs.ADBPort, addrs.VNCPort} {
			if !isPortFree(port) {
				busy = append(busy, fmt.Sprintf("%s:%d", addrs.Name, port))
			}
		}
	}
	if len(busy) > 0 {
		err := fmt.Errorf("ports already in use: %s", strings.Join(busy, ", "))
		recordSpanError(span, err)
		logEvent(env, "instance ports busy", "instances", set.String(), "busy", strings.Join(busy, ","))
		return err
	}
	return nil
}

func portCollisions(env Env, set selector.Set) error {
	owners := make(map[int]string, 2*set.Len())
	var clashes []string
	for _, n := range set.IDs() {
		addrs := env.AddressesFor(n)
		for _, port := range []int{addrs.ADBPort, addrs.VNCPort} {
			if owner, ok := owners[port]; ok {
				clashes = append(clashes, fmt.Sprintf("%s and %s on %d", owner, addrs.Name, port))
				continue
			}
			owners[port] = addrs.Name
		}
	}
	if len(clashes) > 0 {
		return fmt.Errorf("instances share ports: %s", strings.Join(clashes, ", "))
	}
	return nil
}

// isPortFree checks if a TCP port is available
func isPortFree(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}
