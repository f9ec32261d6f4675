// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	core "github.com/forkbombeu/cvdctl/internal/cvd"
	"github.com/forkbombeu/cvdctl/internal/selector"
)

func runCLI(t *testing.T, env map[string]string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	root := newRootCmd(core.Env{HomeDir: t.TempDir()}, &out, lookup)
	root.SetArgs(args)
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	return out.String(), err
}

func TestResolveCommand(t *testing.T) {
	cases := []struct {
		name string
		args []string
		env  map[string]string
		want string
	}{
		{name: "default", args: []string{"resolve"}, want: "1"},
		{name: "env", args: []string{"resolve", "--num_instances=2"}, env: map[string]string{"CUTTLEFISH_INSTANCE": "8"}, want: "8,9"},
		{name: "explicit", args: []string{"resolve", "--instance_nums", "2,5,6"}, env: map[string]string{"CUTTLEFISH_INSTANCE": "8"}, want: "2,5,6"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := runCLI(t, tc.env, tc.args...)
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			if strings.TrimSpace(out) != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, out)
			}
		})
	}
}

func TestResolveCommandJSON(t *testing.T) {
	out, err := runCLI(t, nil, "resolve", "--json", "--base_instance_num=10", "--num_instances=2")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var payload struct {
		Instances []int  `json:"instances"`
		Mode      string `json:"mode"`
		Requested bool   `json:"requested"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(payload.Instances) != 2 || payload.Instances[0] != 10 || payload.Instances[1] != 11 {
		t.Fatalf("unexpected instances %v", payload.Instances)
	}
	if payload.Mode != "range" || !payload.Requested {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestSelectorFailuresExitWithSelectorCode(t *testing.T) {
	_, err := runCLI(t, nil, "resolve", "--instance_nums", "2,5,6", "--base_instance_num=7")
	if err == nil {
		t.Fatal("expected conflicting source error")
	}
	if code := exitCode(err); code != exitSelector {
		t.Fatalf("expected exit code %d, got %d", exitSelector, code)
	}
	if code := exitCode(errors.New("boom")); code != exitError {
		t.Fatalf("expected exit code %d, got %d", exitError, code)
	}
}

func TestMalformedSelectorFlagsExitWithSelectorCode(t *testing.T) {
	cases := [][]string{
		{"resolve", "--num_instances=abc"},
		{"resolve", "--instance_nums", "2,x"},
		{"status", "--base_instance_num=one"},
	}
	for _, args := range cases {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			_, err := runCLI(t, nil, args...)
			if !errors.Is(err, selector.ErrMalformedInput) {
				t.Fatalf("expected malformed input error, got %v", err)
			}
			if code := exitCode(err); code != exitSelector {
				t.Fatalf("expected exit code %d, got %d", exitSelector, code)
			}
		})
	}
}

func TestLaunchRejectsSelectorFlagsAfterDash(t *testing.T) {
	_, err := runCLI(t, nil, "launch", "--num_instances=2", "--", "--num_instances=9")
	if !errors.Is(err, selector.ErrConflictingSource) {
		t.Fatalf("expected conflicting source error, got %v", err)
	}
	if code := exitCode(err); code != exitSelector {
		t.Fatalf("expected exit code %d, got %d", exitSelector, code)
	}
}

func TestStatusCommandJSON(t *testing.T) {
	out, err := runCLI(t, nil, "status", "--json", "--instance_nums", "3")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var infos []core.InstanceInfo
	if err := json.Unmarshal([]byte(out), &infos); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(infos) != 1 || infos[0].Name != "cvd-3" || infos[0].ADBPort != 6522 {
		t.Fatalf("unexpected status %+v", infos)
	}
}
