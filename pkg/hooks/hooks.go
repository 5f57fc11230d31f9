// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package hooks defines typed extension points for Squad components.
//
// Each component exposes a Hooks struct made of the chains below instead of
// consulting a global, string-keyed event bus. The extension surface of a
// component is therefore enumerable and typed:
//
//	c := cache.New(backend)
//	c.Hooks.Bypass.Add(func(call cache.Call) bool {
//	    return call.Group == "transient"
//	})
//
// # Chain Kinds
//
//   - Filter: transforms a value; each callback receives the previous result.
//   - Action: notifies callbacks after something happened.
//   - Gate: asks callbacks whether to short-circuit; any true wins.
//
// The zero value of every chain is ready to use and behaves as a no-op:
// Filter returns its input, Action does nothing, Gate returns false.
//
// # Thread Safety
//
// All chains are safe for concurrent use. Callbacks run on the caller's
// goroutine in registration order and must not register on the same chain.
package hooks

import "sync"

// Filter is an ordered chain of value transformers.
type Filter[T any] struct {
	mu  sync.RWMutex
	fns []func(T) T
}

// Add appends fn to the chain. Nil callbacks are ignored.
func (f *Filter[T]) Add(fn func(T) T) {
	if fn == nil {
		return
	}
	f.mu.Lock()
	f.fns = append(f.fns, fn)
	f.mu.Unlock()
}

// Apply runs v through every callback and returns the final value.
func (f *Filter[T]) Apply(v T) T {
	f.mu.RLock()
	fns := f.fns
	f.mu.RUnlock()

	for _, fn := range fns {
		v = fn(v)
	}
	return v
}

// Len returns the number of registered callbacks.
func (f *Filter[T]) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.fns)
}

// Action is an ordered list of observers.
type Action[T any] struct {
	mu  sync.RWMutex
	fns []func(T)
}

// Add appends fn to the list. Nil callbacks are ignored.
func (a *Action[T]) Add(fn func(T)) {
	if fn == nil {
		return
	}
	a.mu.Lock()
	a.fns = append(a.fns, fn)
	a.mu.Unlock()
}

// Fire calls every observer with v.
func (a *Action[T]) Fire(v T) {
	a.mu.RLock()
	fns := a.fns
	a.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of registered observers.
func (a *Action[T]) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.fns)
}

// Gate is a short-circuit predicate chain.
type Gate[T any] struct {
	mu  sync.RWMutex
	fns []func(T) bool
}

// Add appends fn to the chain. Nil callbacks are ignored.
func (g *Gate[T]) Add(fn func(T) bool) {
	if fn == nil {
		return
	}
	g.mu.Lock()
	g.fns = append(g.fns, fn)
	g.mu.Unlock()
}

// Any reports whether at least one callback returns true for v.
//
// Evaluation stops at the first true result.
func (g *Gate[T]) Any(v T) bool {
	g.mu.RLock()
	fns := g.fns
	g.mu.RUnlock()

	for _, fn := range fns {
		if fn(v) {
			return true
		}
	}
	return false
}

// Len returns the number of registered callbacks.
func (g *Gate[T]) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.fns)
}
