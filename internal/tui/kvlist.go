package tui

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyKV = errors.New("key and value are both required")
	ErrKVIndex = errors.New("row index out of range")
)

// KV is one row of an environment variable or secret mapping list.
type KV struct {
	Key string `yaml:"key" json:"key"`
	Val string `yaml:"val" json:"val"`
}

func (kv KV) Complete() bool {
	return kv.Key != "" && kv.Val != ""
}

// KVList keeps insertion order; env vars are applied in that order.
type KVList []KV

// KVMutation is what an editor reports upward. The owner applies it.
type KVMutation interface {
	kvMutation()
}

type KVAdd struct {
	Pair KV
}

type KVDelete struct {
	Index int
}

func (KVAdd) kvMutation()    {}
func (KVDelete) kvMutation() {}

// Apply returns the list after m; l itself is left alone.
func (l KVList) Apply(m KVMutation) (KVList, error) {
	switch m := m.(type) {
	case KVAdd:
		if !m.Pair.Complete() {
			return l, ErrEmptyKV
		}
		out := make(KVList, 0, len(l)+1)
		out = append(out, l...)
		return append(out, m.Pair), nil
	case KVDelete:
		if m.Index < 0 || m.Index >= len(l) {
			return l, fmt.Errorf("%w: %d", ErrKVIndex, m.Index)
		}
		out := make(KVList, 0, len(l)-1)
		out = append(out, l[:m.Index]...)
		return append(out, l[m.Index+1:]...), nil
	default:
		return l, fmt.Errorf("unsupported key/value mutation %T", m)
	}
}

func (l KVList) join(sep string) []string {
	out := make([]string, 0, len(l))
	for _, kv := range l {
		out = append(out, kv.Key+sep+kv.Val)
	}
	return out
}

// EnvStrings renders KEY=value for the container environment.
func (l KVList) EnvStrings() []string {
	return l.join("=")
}

// SecretRefStrings renders ref@path for gostint's secret lookup.
func (l KVList) SecretRefStrings() []string {
	return l.join("@")
}

// ParseKV accepts "key<sep>value" as typed on a command line.
func ParseKV(s, sep string) (KV, error) {
	key, val, ok := strings.Cut(s, sep)
	kv := KV{Key: strings.TrimSpace(key), Val: strings.TrimSpace(val)}
	if !ok || !kv.Complete() {
		return KV{}, fmt.Errorf("%w: %q", ErrEmptyKV, s)
	}
	return kv, nil
}
