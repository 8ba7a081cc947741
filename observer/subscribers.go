package observer

import (
	"fmt"
	"sync"
)

// subscriber is one websocket client. Events queue in send until the
// writer goroutine picks them up.
type subscriber struct {
	id   string
	send chan Event
}

// subscriberSet holds the connected subscribers.
type subscriberSet struct {
	subs map[string]*subscriber
	lock sync.RWMutex

	onAdd    []func(*subscriber)
	onRemove []func(*subscriber)

	callbackLock sync.RWMutex
}

func newSubscriberSet() *subscriberSet {
	return &subscriberSet{subs: make(map[string]*subscriber)}
}

// Add adds a subscriber and runs the OnAdd callbacks.
func (ss *subscriberSet) Add(s *subscriber) error {
	ss.lock.Lock()
	if _, ok := ss.subs[s.id]; ok {
		ss.lock.Unlock()
		return fmt.Errorf("subscriber %s already exists", s.id)
	}
	ss.subs[s.id] = s
	ss.lock.Unlock()

	ss.callbackLock.RLock()
	defer ss.callbackLock.RUnlock()
	for _, f := range ss.onAdd {
		f(s)
	}
	return nil
}

// Remove removes a subscriber and closes its queue. Removing an unknown
// subscriber does nothing.
func (ss *subscriberSet) Remove(id string) {
	ss.lock.Lock()
	s, ok := ss.subs[id]
	if ok {
		delete(ss.subs, id)
		close(s.send)
	}
	ss.lock.Unlock()
	if !ok {
		return
	}

	ss.callbackLock.RLock()
	defer ss.callbackLock.RUnlock()
	for _, f := range ss.onRemove {
		f(s)
	}
}

// OnAdd registers a callback for added subscribers. Subscribers added
// before do not trigger it.
func (ss *subscriberSet) OnAdd(f func(*subscriber)) {
	ss.callbackLock.Lock()
	ss.onAdd = append(ss.onAdd, f)
	ss.callbackLock.Unlock()
}

// OnRemove registers a callback for removed subscribers.
func (ss *subscriberSet) OnRemove(f func(*subscriber)) {
	ss.callbackLock.Lock()
	ss.onRemove = append(ss.onRemove, f)
	ss.callbackLock.Unlock()
}

// Len returns the number of subscribers.
func (ss *subscriberSet) Len() int {
	ss.lock.RLock()
	defer ss.lock.RUnlock()
	return len(ss.subs)
}

// IDs returns the IDs of all subscribers.
func (ss *subscriberSet) IDs() []string {
	ss.lock.RLock()
	defer ss.lock.RUnlock()
	ids := make([]string, 0, len(ss.subs))
	for id := range ss.subs {
		ids = append(ids, id)
	}
	return ids
}

// Map calls f for every subscriber while holding the read lock, so no
// queue is closed while f runs. f must not block.
func (ss *subscriberSet) Map(f func(*subscriber)) {
	ss.lock.RLock()
	defer ss.lock.RUnlock()
	for _, s := range ss.subs {
		f(s)
	}
}
