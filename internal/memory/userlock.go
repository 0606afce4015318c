package memory

import "sync"

// userLocks serializes the write path per user. Two concurrent saves for the
// same user could otherwise both miss FindActive and create duplicate active
// records for one identity; different users never contend.
//
// Locks are kept for the life of the process — one mutex per user seen is a
// negligible footprint.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*sync.Mutex)}
}

func (u *userLocks) lock(userID string) *sync.Mutex {
	u.mu.Lock()
	m, ok := u.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		u.locks[userID] = m
	}
	u.mu.Unlock()

	m.Lock()
	return m
}
