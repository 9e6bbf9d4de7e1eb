package kv

import (
	"io"
	"math/bits"
	"reflect"
	"runtime"
	"sync"
	"unsafe"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/multierr"
	"golang.org/x/sys/cpu"

	"github.com/benz9527/xarena/lib/infra"
)

const (
	defaultInitCap = 32
	maxShards      = 1 << 12
)

type mapShard[K ~string, V any] struct {
	lock  sync.RWMutex
	items map[K]V
	_     [unsafe.Sizeof(cpu.CacheLinePad{})]byte
}

type shardedMap[K ~string, V any] struct {
	shards         []mapShard[K, V]
	mask           uint64
	isClosableItem bool
}

var _ ThreadSafeStorer[string, struct{}] = (*shardedMap[string, struct{}])(nil)

func (m *shardedMap[K, V]) shardOf(key K) *mapShard[K, V] {
	return &m.shards[xxhash.Sum64String(string(key))&m.mask]
}

func (m *shardedMap[K, V]) AddOrUpdate(key K, obj V) {
	s := m.shardOf(key)
	s.lock.Lock()
	defer s.lock.Unlock()
	s.items[key] = obj
}

func (m *shardedMap[K, V]) Delete(key K) (V, bool) {
	s := m.shardOf(key)
	s.lock.Lock()
	defer s.lock.Unlock()
	item, exists := s.items[key]
	if exists {
		delete(s.items, key)
	}
	return item, exists
}

func (m *shardedMap[K, V]) Get(key K) (item V, exists bool) {
	s := m.shardOf(key)
	s.lock.RLock()
	defer s.lock.RUnlock()
	item, exists = s.items[key]
	return
}

func (m *shardedMap[K, V]) GetOrCompute(key K, compute func() V) (V, bool) {
	s := m.shardOf(key)
	s.lock.RLock()
	item, exists := s.items[key]
	s.lock.RUnlock()
	if exists {
		return item, true
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if item, exists = s.items[key]; /* d-check */ exists {
		return item, true
	}
	item = compute()
	s.items[key] = item
	return item, false
}

func (m *shardedMap[K, V]) Len() int {
	n := 0
	for i := range m.shards {
		m.shards[i].lock.RLock()
		n += len(m.shards[i].items)
		m.shards[i].lock.RUnlock()
	}
	return n
}

func (m *shardedMap[K, V]) ListKeys(filters ...SafeStoreKeyFilterFunc[K]) []K {
	realFilters := make([]SafeStoreKeyFilterFunc[K], 0, len(filters))
	for _, filter := range filters {
		if filter != nil {
			realFilters = append(realFilters, filter)
		}
	}
	if len(realFilters) == 0 {
		realFilters = append(realFilters, defaultAllKeysFilter[K])
	}

	keys := make([]K, 0, defaultInitCap)
	for i := range m.shards {
		s := &m.shards[i]
		s.lock.RLock()
		for key := range s.items {
			for _, filter := range realFilters {
				if filter(key) {
					keys = append(keys, key)
					break
				}
			}
		}
		s.lock.RUnlock()
	}
	return keys
}

func (m *shardedMap[K, V]) Purge() error {
	var merr error
	for i := range m.shards {
		s := &m.shards[i]
		s.lock.Lock()
		if m.isClosableItem {
			for _, item := range s.items {
				if c, ok := any(item).(io.Closer); ok && c != nil {
					merr = multierr.Append(merr, c.Close())
				}
			}
		}
		s.items = make(map[K]V)
		s.lock.Unlock()
	}
	return merr
}

type shardedMapOptions struct {
	shards  int
	initCap int
}

type ShardedMapOption func(opts *shardedMapOptions) error

// WithShardedMapShards rounds n up to a power of two.
func WithShardedMapShards(n int) ShardedMapOption {
	return func(opts *shardedMapOptions) error {
		if n <= 0 || n > maxShards {
			return infra.NewErrorStack("[kv] invalid shards number")
		}
		opts.shards = 1 << bits.Len(uint(n-1))
		return nil
	}
}

func WithShardedMapInitCap(capacity int) ShardedMapOption {
	return func(opts *shardedMapOptions) error {
		if capacity < 0 {
			return infra.NewErrorStack("[kv] negative init capacity")
		}
		opts.initCap = capacity
		return nil
	}
}

// NewShardedMap spreads the keys over shards by their xxhash digest.
// The default shards number is GOMAXPROCS rounded up to a power of two.
func NewShardedMap[K ~string, V any](opts ...ShardedMapOption) (ThreadSafeStorer[K, V], error) {
	o := &shardedMapOptions{
		shards:  1 << bits.Len(uint(runtime.GOMAXPROCS(0)-1)),
		initCap: defaultInitCap,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	m := &shardedMap[K, V]{
		shards:         make([]mapShard[K, V], o.shards),
		mask:           uint64(o.shards - 1),
		isClosableItem: isCloser[V](),
	}
	perShard := max(o.initCap/o.shards, 1)
	for i := range m.shards {
		m.shards[i].items = make(map[K]V, perShard)
	}
	return m, nil
}

func isCloser[V any]() bool {
	typ := reflect.TypeOf((*V)(nil)).Elem()
	closerType := reflect.TypeOf((*io.Closer)(nil)).Elem()
	return typ.Kind() == reflect.Interface || typ.Implements(closerType)
}
