package syncer

import (
	"reflect"
	"sync"

	"github.com/Fixen7/lifequest-app/docstore"
)

const maxPendingEchoes = 16

// echoFilter recognizes the store's notifications of our own writes so the
// session does not re-apply a state it has already moved past.
type echoFilter struct {
	mu      sync.Mutex
	pending map[string][]docstore.Fields
}

func newEchoFilter() *echoFilter {
	return &echoFilter{pending: make(map[string][]docstore.Fields)}
}

// expect records the full document we expect the store to report for path.
func (f *echoFilter) expect(path string, full docstore.Fields) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := append(f.pending[path], full)
	if len(q) > maxPendingEchoes {
		q = q[len(q)-maxPendingEchoes:]
	}
	f.pending[path] = q
}

// consume reports whether snap is one of the expected echoes for path and
// drops it together with every older expectation. Any other snapshot is
// newer state from elsewhere: it clears the queue so the echoes that follow
// it are applied on top of it.
func (f *echoFilter) consume(path string, snap docstore.Fields) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.pending[path]
	for i, want := range q {
		if matches(want, snap) {
			if rest := q[i+1:]; len(rest) > 0 {
				f.pending[path] = rest
			} else {
				delete(f.pending, path)
			}
			return true
		}
	}
	delete(f.pending, path)
	return false
}

func (f *echoFilter) forget(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, path)
}

func matches(want, got docstore.Fields) bool {
	for k, v := range want {
		if !reflect.DeepEqual(v, got[k]) {
			return false
		}
	}
	return true
}
