package service

import "sync"

// keyedMutex serializes same-process callers per key (round or request ID).
// The durable exactly-once guard is the database compare-and-set; this lock
// only prevents two local goroutines from interleaving read-resolve-write.
type keyedMutex struct {
	locks sync.Map // key -> *sync.Mutex
}

func (k *keyedMutex) Lock(key string) {
	m, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	m.(*sync.Mutex).Lock()
}

func (k *keyedMutex) Unlock(key string) {
	m, ok := k.locks.Load(key)
	if !ok {
		return
	}
	m.(*sync.Mutex).Unlock()
}
