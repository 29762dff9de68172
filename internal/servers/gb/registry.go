package gb

import (
	"sync"
)

type interrupter interface {
	interrupt()
}

// registry is the process-wide resource map. Sessions are reachable
// under two keys, the device id string and the numeric SSRC; bare
// connections that are not bound to a session yet live under an
// anonymous key so that they can be reaped.
type registry struct {
	mutex    sync.RWMutex
	sessions map[string]*session
	ssrcs    map[uint32]*session
	anon     map[string]interrupter
}

func newRegistry() *registry {
	return &registry{
		sessions: make(map[string]*session),
		ssrcs:    make(map[uint32]*session),
		anon:     make(map[string]interrupter),
	}
}

// findOrCreateSession returns the session registered under the device
// id, creating it with the given constructor when absent. The second
// return value reports whether the session already existed.
func (r *registry) findOrCreateSession(deviceID string, create func() *session) (*session, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if s, ok := r.sessions[deviceID]; ok {
		return s, true
	}

	s := create()
	r.sessions[deviceID] = s
	return s, false
}

func (r *registry) findSession(deviceID string) *session {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.sessions[deviceID]
}

// addSSRC registers the session under the given SSRC. It reports
// whether the SSRC was free.
func (r *registry) addSSRC(ssrc uint32, s *session) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.ssrcs[ssrc]; ok {
		return false
	}

	r.ssrcs[ssrc] = s
	return true
}

func (r *registry) findSSRC(ssrc uint32) *session {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.ssrcs[ssrc]
}

// removeSession removes every key pointing at the session.
func (r *registry) removeSession(s *session) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for id, cur := range r.sessions {
		if cur == s {
			delete(r.sessions, id)
		}
	}

	for ssrc, cur := range r.ssrcs {
		if cur == s {
			delete(r.ssrcs, ssrc)
		}
	}
}

func (r *registry) addAnon(key string, c interrupter) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.anon[key] = c
}

func (r *registry) removeAnon(key string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.anon, key)
}
