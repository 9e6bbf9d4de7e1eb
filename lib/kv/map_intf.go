package kv

type SafeStoreKeyFilterFunc[K ~string] func(key K) bool

func defaultAllKeysFilter[K ~string](key K) bool {
	return true
}

// ThreadSafeStorer is a string keyed map safe for concurrent use.
type ThreadSafeStorer[K ~string, V any] interface {
	// Purge drops every item, closing items which implement io.Closer.
	Purge() error
	AddOrUpdate(key K, obj V)
	Delete(key K) (V, bool)
	Get(key K) (item V, exists bool)
	// GetOrCompute returns the item of key, or stores and returns the
	// result of compute. compute runs at most once per missing key, under
	// the write lock of the key's shard.
	GetOrCompute(key K, compute func() V) (item V, loaded bool)
	Len() int
	ListKeys(filters ...SafeStoreKeyFilterFunc[K]) []K
}
