package orchestrator

import "sync"

// repoBranchLock is the in-memory advisory lock on (repo_id, branch) that
// makes two concurrent creates for the same pair fail fast on the second
// (spec §5, §4.G.1).
type repoBranchLock struct {
	mu  sync.Mutex
	set map[string]bool
}

func newRepoBranchLock() *repoBranchLock {
	return &repoBranchLock{set: make(map[string]bool)}
}

func lockKey(repoID, branch string) string { return repoID + "\x00" + branch }

// TryAcquire returns a release func and true if the pair was free, or
// false if already held.
func (l *repoBranchLock) TryAcquire(repoID, branch string) (release func(), ok bool) {
	key := lockKey(repoID, branch)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.set[key] {
		return nil, false
	}
	l.set[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.set, key)
	}, true
}
