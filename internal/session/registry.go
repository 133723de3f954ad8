package session

// Registry holds the session tabs in display order, keyed by session key.
// Keys start out provisional and are renamed in place once the backend
// confirms a session id. The Registry itself is not goroutine safe; the
// Controller serializes access to it.
type Registry struct {
	order  []string
	tabs   map[string]SessionTab
	active string
}

func NewRegistry() *Registry {
	return &Registry{tabs: make(map[string]SessionTab)}
}

// Put inserts or replaces the tab under key. New keys append to the display
// order.
func (r *Registry) Put(key string, tab SessionTab) {
	if _, ok := r.tabs[key]; !ok {
		r.order = append(r.order, key)
	}
	r.tabs[key] = tab
}

func (r *Registry) Get(key string) (SessionTab, bool) {
	tab, ok := r.tabs[key]
	return tab, ok
}

// Rekey renames oldKey to newKey, preserving the tab's identity and display
// position. It reports false when oldKey is absent or newKey is taken.
func (r *Registry) Rekey(oldKey, newKey string) bool {
	tab, ok := r.tabs[oldKey]
	if !ok {
		return false
	}
	if oldKey == newKey {
		return true
	}
	if _, taken := r.tabs[newKey]; taken {
		return false
	}
	delete(r.tabs, oldKey)
	r.tabs[newKey] = tab
	for i, k := range r.order {
		if k == oldKey {
			r.order[i] = newKey
			break
		}
	}
	if r.active == oldKey {
		r.active = newKey
	}
	return true
}

// Remove deletes the tab under key and returns it. The active pointer is
// cleared when it referenced the removed tab.
func (r *Registry) Remove(key string) (SessionTab, bool) {
	tab, ok := r.tabs[key]
	if !ok {
		return nil, false
	}
	delete(r.tabs, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.active == key {
		r.active = ""
	}
	return tab, true
}

// Keys returns the session keys in display order.
func (r *Registry) Keys() []string {
	keys := make([]string, len(r.order))
	copy(keys, r.order)
	return keys
}

func (r *Registry) Len() int { return len(r.tabs) }

func (r *Registry) Active() string { return r.active }

// SetActive points the active marker at key. It reports false for unknown
// keys and leaves the marker unchanged.
func (r *Registry) SetActive(key string) bool {
	if _, ok := r.tabs[key]; !ok {
		return false
	}
	r.active = key
	return true
}
