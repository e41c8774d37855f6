package bridge

import "sync"

var (
	sharedMu     sync.Mutex
	sharedBridge *Bridge
)

// Shared returns the process-wide bridge, creating it on first use.
// Every sandboxed mount in the process registers its session here so
// one websocket endpoint can serve them all.
func Shared(router Router, logger Logger) *Bridge {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedBridge == nil {
		sharedBridge = New(router, logger)
	}
	return sharedBridge
}

// ResetShared discards the process-wide bridge after deregistering
// every session. Test isolation only.
func ResetShared() {
	sharedMu.Lock()
	b := sharedBridge
	sharedBridge = nil
	sharedMu.Unlock()
	if b == nil {
		return
	}
	b.mu.Lock()
	ids := make([]string, 0, len(b.sessions))
	for id := range b.sessions {
		ids = append(ids, id)
	}
	b.mu.Unlock()
	for _, id := range ids {
		b.Deregister(id)
	}
}
