package pkg

import "sync"

// HasLocker is implemented by types guarding their state with an RWMutex.
type HasLocker interface{ GetLocker() *sync.RWMutex }

func LockWrap(i HasLocker, f func()) {
	i.GetLocker().Lock()
	defer i.GetLocker().Unlock()
	f()
}

func RLockWrap(i HasLocker, f func()) {
	i.GetLocker().RLock()
	defer i.GetLocker().RUnlock()
	f()
}

// RLockValue returns the result of f, called under i's read lock.
func RLockValue[T any](i HasLocker, f func() T) T {
	i.GetLocker().RLock()
	defer i.GetLocker().RUnlock()
	return f()
}
