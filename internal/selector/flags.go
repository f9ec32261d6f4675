// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package selector

import (
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// Historical flag and environment names understood by the launcher.
const (
	FlagNumInstances    = "num_instances"
	FlagBaseInstanceNum = "base_instance_num"
	FlagInstanceNums    = "instance_nums"
	EnvInstance         = "CUTTLEFISH_INSTANCE"
)

// FlagSource exposes already-parsed flag values and environment variables.
// It performs no validation.
type FlagSource interface {
	GetOptionalInt(name string) (Optional[int], error)
	GetOptionalIntList(name string) (Optional[[]int], error)
	GetEnv(name string) Optional[string]
}

// AddFlags registers the selector flags on fs. Values are kept verbatim and
// only parsed by PFlagSource, so a non-integer value surfaces as
// KindMalformedInput instead of a flag parse failure.
func AddFlags(fs *pflag.FlagSet) {
	fs.Var(&rawValue{raw: "1", typ: "int"}, FlagNumInstances, "number of instances to target")
	fs.Var(&rawValue{raw: strconv.Itoa(DefaultBase), typ: "int"}, FlagBaseInstanceNum, "first instance number of a contiguous range")
	fs.Var(&rawValue{typ: "ints", list: true}, FlagInstanceNums, "comma-separated list of instance numbers (e.g. 2,5,6)")
}

// rawValue is a pflag.Value that stores the command-line text as given.
// List values accumulate across repeated flags, like pflag's IntSlice.
type rawValue struct {
	raw  string
	typ  string
	list bool
	set  bool
}

func (v *rawValue) String() string { return v.raw }

func (v *rawValue) Type() string { return v.typ }

func (v *rawValue) Set(s string) error {
	if v.list && v.set {
		v.raw += "," + s
	} else {
		v.raw = s
	}
	v.set = true
	return nil
}

// PFlagSource reads selector values from a parsed pflag.FlagSet. A flag
// counts as present only when it was set on the command line.
type PFlagSource struct {
	Flags     *pflag.FlagSet
	LookupEnv func(string) (string, bool)
}

// NewPFlagSource returns a source over fs backed by the process environment.
func NewPFlagSource(fs *pflag.FlagSet) *PFlagSource {
	return &PFlagSource{Flags: fs, LookupEnv: os.LookupEnv}
}

func (p *PFlagSource) GetOptionalInt(name string) (Optional[int], error) {
	flag := p.Flags.Lookup(name)
	if flag == nil || !flag.Changed {
		return None[int](), nil
	}
	raw := strings.TrimSpace(flag.Value.String())
	v, err := strconv.Atoi(raw)
	if err != nil {
		return None[int](), newError(KindMalformedInput, "--%s=%q is not an integer", name, raw)
	}
	return Some(v), nil
}

// GetOptionalIntList accepts comma-separated values. Brackets are stripped so
// flags registered with pflag's IntSlice read the same way.
func (p *PFlagSource) GetOptionalIntList(name string) (Optional[[]int], error) {
	flag := p.Flags.Lookup(name)
	if flag == nil || !flag.Changed {
		return None[[]int](), nil
	}
	raw := strings.Trim(strings.TrimSpace(flag.Value.String()), "[]")
	list := []int{}
	if raw == "" {
		return Some(list), nil
	}
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		v, err := strconv.Atoi(field)
		if err != nil {
			return None[[]int](), newError(KindMalformedInput, "--%s: %q is not an integer", name, field)
		}
		list = append(list, v)
	}
	return Some(list), nil
}

func (p *PFlagSource) GetEnv(name string) Optional[string] {
	lookup := p.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(name); ok {
		return Some(v)
	}
	return None[string]()
}

// ReadInput collects the four selector sources from src. Values that do not
// parse as integers are reported as KindMalformedInput; all semantic checks
// are left to Resolve.
func ReadInput(src FlagSource) (Input, error) {
	var in Input
	var err error
	if in.NumInstances, err = src.GetOptionalInt(FlagNumInstances); err != nil {
		return Input{}, err
	}
	if in.BaseInstanceNum, err = src.GetOptionalInt(FlagBaseInstanceNum); err != nil {
		return Input{}, err
	}
	if in.InstanceNums, err = src.GetOptionalIntList(FlagInstanceNums); err != nil {
		return Input{}, err
	}
	if in.EnvInstance, err = parseEnvInstance(src.GetEnv(EnvInstance)); err != nil {
		return Input{}, err
	}
	return in, nil
}

// parseEnvInstance treats an empty variable the same as an unset one.
func parseEnvInstance(raw Optional[string]) (Optional[int], error) {
	s, ok := raw.Get()
	s = strings.TrimSpace(s)
	if !ok || s == "" {
		return None[int](), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return None[int](), newError(KindMalformedInput, "%s=%q is not an instance number", EnvInstance, s)
	}
	return Some(n), nil
}

// FromFlags reads the selector sources from fs and the environment and
// resolves them.
func FromFlags(fs *pflag.FlagSet, lookupEnv func(string) (string, bool)) (Set, error) {
	src := NewPFlagSource(fs)
	if lookupEnv != nil {
		src.LookupEnv = lookupEnv
	}
	in, err := ReadInput(src)
	if err != nil {
		return Set{}, err
	}
	return Resolve(in)
}
