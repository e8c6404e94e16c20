package goSession

import (
	"errors"
	"strings"
	"sync"
)

// Router is the navigation surface the guard drives.
type Router interface {
	// Location returns the current location.
	Location() string
	// Subscribe registers fn for location changes and returns a disposer.
	Subscribe(fn func(location string)) func()
	// Replace navigates to location without adding a history entry.
	Replace(location string) error
}

// ErrInvalidLocation is returned by MemoryRouter for relative or empty locations.
var ErrInvalidLocation = errors.New("location must start with '/'")

type routerListener struct {
	fn func(string)
}

// MemoryRouter is an in-process Router. Listeners are called synchronously after the
// location changes, outside the router lock.
type MemoryRouter struct {
	mu        sync.Mutex
	location  string
	listeners []*routerListener
	replaced  []string
}

// NewMemoryRouter returns a router positioned at initial.
func NewMemoryRouter(initial string) *MemoryRouter {
	return &MemoryRouter{location: initial}
}

func (r *MemoryRouter) Location() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.location
}

func (r *MemoryRouter) Subscribe(fn func(string)) func() {
	if fn == nil {
		return func() {}
	}
	l := &routerListener{fn: fn}

	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for i, existing := range r.listeners {
				if existing == l {
					r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Navigate moves to location as a user action would.
func (r *MemoryRouter) Navigate(location string) error {
	return r.move(location, false)
}

func (r *MemoryRouter) Replace(location string) error {
	return r.move(location, true)
}

// Replaced returns every location passed to Replace, oldest first.
func (r *MemoryRouter) Replaced() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.replaced...)
}

func (r *MemoryRouter) move(location string, replace bool) error {
	if !strings.HasPrefix(location, "/") {
		return ErrInvalidLocation
	}

	r.mu.Lock()
	if replace {
		r.replaced = append(r.replaced, location)
	}
	if r.location == location {
		r.mu.Unlock()
		return nil
	}
	r.location = location
	listeners := append([]*routerListener(nil), r.listeners...)
	r.mu.Unlock()

	for _, l := range listeners {
		l.fn(location)
	}
	return nil
}
