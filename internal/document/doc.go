// Package document provides the document session that injected scripts and
// bridges are applied to.
//
// A session owns one script global scope per successfully loaded document.
// Every navigation discards the previous scope, so anything a host wants to
// persist across pages has to be re-established after each transition to
// StateSucceeded. All scope access happens on the session's Loop; callers on
// other goroutines reach it through Post.
//
// The Engine type is a small goja-backed implementation: it fetches a page,
// parses it with goquery, runs its inline scripts in a fresh runtime and
// exposes a minimal window/document/console host surface.
package document
