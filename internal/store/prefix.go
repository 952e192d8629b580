package store

import (
	"context"
	"strings"
)

// Prefixed namespaces every key of an underlying store. Close is a no-op so
// several processors can share one connection.
type Prefixed struct {
	inner  Store
	prefix string
}

// WithPrefix returns a view of s whose keys are "<prefix>:<key>". Prefixes
// nest: WithPrefix(WithPrefix(s, "a"), "b") writes under "a:b:".
func WithPrefix(s Store, prefix string) *Prefixed {
	prefix = strings.Trim(prefix, ":")
	if p, ok := s.(*Prefixed); ok {
		return &Prefixed{inner: p.inner, prefix: p.join(prefix)}
	}
	return &Prefixed{inner: s, prefix: prefix}
}

// Prefix returns the effective key prefix without the trailing separator.
func (p *Prefixed) Prefix() string { return p.prefix }

func (p *Prefixed) join(key string) string {
	if p.prefix == "" {
		return key
	}
	return p.prefix + ":" + key
}

func (p *Prefixed) joinAll(keys []string) []string {
	out := make([]string, len(keys))
	for i, key := range keys {
		out[i] = p.join(key)
	}
	return out
}

func (p *Prefixed) ListDropFront(ctx context.Context, key string, n int) error {
	return DropFront(ctx, p.inner, p.join(key), n)
}

func (p *Prefixed) ListAppend(ctx context.Context, key string, value string) error {
	return p.inner.ListAppend(ctx, p.join(key), value)
}

func (p *Prefixed) ListRange(ctx context.Context, key string) ([]string, error) {
	return p.inner.ListRange(ctx, p.join(key))
}

func (p *Prefixed) Delete(ctx context.Context, keys ...string) error {
	return p.inner.Delete(ctx, p.joinAll(keys)...)
}

func (p *Prefixed) SetAdd(ctx context.Context, key string, members ...string) error {
	return p.inner.SetAdd(ctx, p.join(key), members...)
}

func (p *Prefixed) SetMembers(ctx context.Context, key string) ([]string, error) {
	return p.inner.SetMembers(ctx, p.join(key))
}

func (p *Prefixed) HashSet(ctx context.Context, key string, fields map[string]string) error {
	return p.inner.HashSet(ctx, p.join(key), fields)
}

func (p *Prefixed) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	return p.inner.HashGetAll(ctx, p.join(key))
}

func (p *Prefixed) SortedAdd(ctx context.Context, key string, member string, score float64) error {
	return p.inner.SortedAdd(ctx, p.join(key), member, score)
}

func (p *Prefixed) SortedRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	return p.inner.SortedRangeByScore(ctx, p.join(key), min, max)
}

func (p *Prefixed) SortedRemove(ctx context.Context, key string, members ...string) error {
	return p.inner.SortedRemove(ctx, p.join(key), members...)
}

func (p *Prefixed) Close() error { return nil }
