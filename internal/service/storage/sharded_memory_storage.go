package storage

import (
	"fmt"
	"sync"
)

// ShardedMemoryStorage - sharded object storage
type ShardedMemoryStorage[K comparable, V any] struct {
	shards     []*shardData[K, V]
	shardCount int
	keyToShard func(K) int // Shard distribution function
}

// shardData - single shard data
type shardData[K comparable, V any] struct {
	data  map[K]V
	mutex sync.RWMutex
}

// NewShardedMemoryStorage creates a new sharded storage
func NewShardedMemoryStorage[K comparable, V any](shardCount int, keyToShardFunc func(K) int) *ShardedMemoryStorage[K, V] {
	// Round up to power of two
	realShardCount := 1
	for realShardCount < shardCount {
		realShardCount *= 2
	}

	shards := make([]*shardData[K, V], realShardCount)
	for i := range shards {
		shards[i] = &shardData[K, V]{data: make(map[K]V)}
	}

	if keyToShardFunc == nil {
		mask := realShardCount - 1
		keyToShardFunc = func(key K) int {
			switch k := any(key).(type) {
			case string:
				return int(fnv1a(k)) & mask
			case int:
				return k & mask
			case int64:
				return int(k) & mask
			default:
				return int(fnv1a(fmt.Sprintf("%v", key))) & mask
			}
		}
	}

	return &ShardedMemoryStorage[K, V]{
		shards:     shards,
		shardCount: realShardCount,
		keyToShard: keyToShardFunc,
	}
}

// FNV-1a hash function
func fnv1a(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

func (s *ShardedMemoryStorage[K, V]) getShard(key K) *shardData[K, V] {
	return s.shards[s.keyToShard(key)]
}

// ShardCount returns the effective number of shards
func (s *ShardedMemoryStorage[K, V]) ShardCount() int {
	return s.shardCount
}

// Set adds or updates an object
func (s *ShardedMemoryStorage[K, V]) Set(key K, value V) {
	shard := s.getShard(key)

	shard.mutex.Lock()
	defer shard.mutex.Unlock()

	shard.data[key] = value
}

// Get returns object by key
func (s *ShardedMemoryStorage[K, V]) Get(key K) (V, bool) {
	shard := s.getShard(key)

	shard.mutex.RLock()
	defer shard.mutex.RUnlock()

	value, exists := shard.data[key]
	return value, exists
}

// Update atomically replaces the value for key with the result of fn,
// holding only the key's shard lock.
func (s *ShardedMemoryStorage[K, V]) Update(key K, fn func(value V, exists bool) (V, bool)) bool {
	shard := s.getShard(key)

	shard.mutex.Lock()
	defer shard.mutex.Unlock()

	current, exists := shard.data[key]
	next, write := fn(current, exists)
	if !write {
		return false
	}
	shard.data[key] = next
	return true
}

// Delete removes an object
func (s *ShardedMemoryStorage[K, V]) Delete(key K) bool {
	shard := s.getShard(key)

	shard.mutex.Lock()
	defer shard.mutex.Unlock()

	if _, exists := shard.data[key]; !exists {
		return false
	}

	delete(shard.data, key)
	return true
}

// GetAllValues returns all values as a slice
func (s *ShardedMemoryStorage[K, V]) GetAllValues() []V {
	result := make([]V, 0, s.Count())

	for _, shard := range s.shards {
		shard.mutex.RLock()
		for _, v := range shard.data {
			result = append(result, v)
		}
		shard.mutex.RUnlock()
	}

	return result
}

// ForEach executes a function for each object
func (s *ShardedMemoryStorage[K, V]) ForEach(fn func(key K, value V) bool) {
	for _, shard := range s.shards {
		shard.mutex.RLock()
		items := make(map[K]V, len(shard.data))
		for k, v := range shard.data {
			items[k] = v
		}
		shard.mutex.RUnlock()

		for k, v := range items {
			if !fn(k, v) {
				return
			}
		}
	}
}

// Count returns total number of objects
func (s *ShardedMemoryStorage[K, V]) Count() int {
	count := 0
	for _, shard := range s.shards {
		shard.mutex.RLock()
		count += len(shard.data)
		shard.mutex.RUnlock()
	}
	return count
}
