// Package valmem provides validated memory: deferred result handles that are
// filled in place by a dispatch and become readable only once that dispatch
// has succeeded.
//
// A handle is created empty when a read-like operation is queued. The client
// keeps the backing Mem alive until the dispatch completes, so the caller may
// drop its own copy without invalidating the reply target:
//
//	word, _ := c.Read(0x10)
//	_ = c.Dispatch(ctx)
//	v, err := word.Value() // ErrUnresolvedValue if the dispatch failed
//
// Handles are single-assignment. A Mem becomes valid exactly once and is
// never written again, so readers after that point need no synchronization.
package valmem
