// Package ui is the terminal front end.
//
// Terminal owns a tcell screen and is the UI thread: Run polls screen
// events and Post crosses other goroutines onto it through
// tcell.EventInterrupt. The screen is split into a header row, the document
// viewport and a status line. Headless provides the same View surface with
// no screen for scripted use.
package ui
