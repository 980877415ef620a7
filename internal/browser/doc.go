// Package browser is the controller between the terminal view and the
// document engine.
//
// A Browser owns one document.Engine and the injection.Registry that replays
// plugin scripts and bridges into it. It implements bridge.Actions for the
// native context menu and ui.Controller for the keyboard and mouse commands
// of the view.
//
// Navigation requests are routed before they reach the engine:
//
//	link://open/about        built-in About page
//	link://open/settings     built-in Settings page
//	link://open/github       project home page
//	link://settings/flash/*  toggles the flash setting
//	*.zip, *.pdf, ...        handed to Downloads
//	anything else            normalized and loaded
//
// Status text is mirrored to the view and to window.updateStatus in the
// current document when a plugin defines it.
package browser
