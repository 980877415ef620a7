// Package bridge carries calls from document script into native code.
//
// The context-menu bridge is bound in every document as nativeContext.
// ContextMenuScript forwards right clicks to it with primitive arguments;
// the bridge then crosses onto the UI thread, resolves the click to screen
// coordinates and shows a menu whose actions close over the clicked
// element's locators.
//
// A menu moves through these states:
//
//	NoMenu -> MenuRequested -> MenuShown -> Dismissed      -> NoMenu
//	                                     -> ActionSelected -> NoMenu
//
// A request whose coordinates cannot be resolved goes straight back to
// NoMenu without showing anything.
package bridge
