// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

/*
Package cvdmanager provides a Go library for selecting, addressing and
launching Cuttlefish virtual device instances.

# Overview

A single host can run many virtual devices side by side. Each one is
addressed by a positive instance number, and every host resource it owns
(ADB and VNC ports, vsock CID, runtime directory) is derived from that number.
This package turns the historical selector flags into a validated instance
set and hands it to the host package's launcher.

# Quick Start

	import "github.com/forkbombeu/cvdctl/pkg/cvdmanager"

	func main() {
		mgr := cvdmanager.New()

		// Equivalent to: --instance_nums 2,5,6
		set, err := mgr.Resolve(cvdmanager.SelectorOptions{
			InstanceNums: []int{2, 5, 6},
		})
		if err != nil {
			// errors.Is(err, cvdmanager.ErrCountMismatch), ...
		}

		for _, inst := range mgr.Instances(set) {
			fmt.Println(inst.Name, inst.ADBSerial)
		}

		mgr.Launch(cvdmanager.LaunchOptions{Instances: set})
	}

# Selector Rules

Instances are picked either by an explicit list or by a contiguous range.

**Explicit list** (InstanceNums): the set is the list in the given order.
BaseInstanceNum must not be set, NumInstances must equal the list length if
set, ids must be positive and unique. CUTTLEFISH_INSTANCE is ignored.

**Range**: the base is BaseInstanceNum, else CUTTLEFISH_INSTANCE, else 1. The
count is NumInstances, else 1. The set is base, base+1, ..., base+count-1.

With no selector at all the set is {1} and Set.Requested reports false.

# Addressing

Instance n gets ADB port 6520+n-1, VNC port 6444+n-1 and vsock CID n+2.
Runtime state lives in $CVD_HOME/cuttlefish_runtime.<n>.

# Environment Variables

	CVD_HOST_DIR            Host package directory (falls back to ANDROID_HOST_OUT)
	CVD_HOME                Parent of runtime directories (default: $HOME)
	CUTTLEFISH_INSTANCE     Legacy single-instance selector
	CVDCTL_CORRELATION_ID   Correlation ID added to logs and spans

# Errors

Selector failures carry a kind (KindConflictingSource, KindCountMismatch,
KindDuplicateInstanceID, KindInvalidRange, KindMalformedInput) available via
KindOf, and match the exported sentinels with errors.Is.
*/
package cvdmanager
