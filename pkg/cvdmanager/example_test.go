// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package cvdmanager_test

import (
	"errors"
	"fmt"
	"log"

	"github.com/forkbombeu/cvdctl/pkg/cvdmanager"
)

func Example_resolveRange() {
	mgr := cvdmanager.New()

	// --num_instances=2 with CUTTLEFISH_INSTANCE=8
	set, err := mgr.Resolve(cvdmanager.SelectorOptions{
		NumInstances: cvdmanager.Int(2),
		EnvInstance:  cvdmanager.Int(8),
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(set.IDs())
	// Output: [8 9]
}

func Example_resolveExplicit() {
	mgr := cvdmanager.New()

	set, err := mgr.Resolve(cvdmanager.SelectorOptions{
		InstanceNums: []int{2, 5, 6},
		NumInstances: cvdmanager.Int(3),
		EnvInstance:  cvdmanager.Int(8),
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(set, set.Mode())
	// Output: 2,5,6 explicit
}

func Example_rejectedSelector() {
	mgr := cvdmanager.New()

	_, err := mgr.Resolve(cvdmanager.SelectorOptions{
		InstanceNums: []int{2, 5, 6},
		NumInstances: cvdmanager.Int(7),
	})
	fmt.Println(errors.Is(err, cvdmanager.ErrCountMismatch), cvdmanager.KindOf(err))
	// Output: true CountMismatch
}

func Example_launch() {
	mgr := cvdmanager.NewWithEnv(cvdmanager.Environment{
		HostDir: "/opt/cuttlefish",
		HomeDir: "/srv/cvd",
	})

	set, err := mgr.Resolve(cvdmanager.SelectorOptions{
		BaseInstanceNum: cvdmanager.Int(10),
		NumInstances:    cvdmanager.Int(2),
	})
	if err != nil {
		log.Fatal(err)
	}
	for _, inst := range mgr.Instances(set) {
		fmt.Printf("%s adb=%s vnc=%d\n", inst.Name, inst.ADBSerial, inst.VNCPort)
	}

	logPath, err := mgr.Launch(cvdmanager.LaunchOptions{
		Instances: set,
		ExtraArgs: []string{"--daemon", "--report_anonymous_usage_stats=n"},
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Launched %s (log: %s)\n", set, logPath)
}
