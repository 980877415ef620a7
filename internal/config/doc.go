// Package config loads the LinkBrowser configuration.
//
// Settings come from three layers, later layers overriding earlier ones:
//
//	built-in defaults  (Default)
//	config file        (~/LinkBrowser/config.toml)
//	environment        (LINKBROWSER_*)
//
// Command line flags are applied by the caller on top of the result.
//
// # File format
//
//	[plugins]
//	dir = "~/LinkBrowser/plugins"
//	extensions = [".zip", ".lbp"]
//	init_timeout = "10s"
//	disabled = ["noisy-plugin"]
//
//	[startup]
//	min_splash = "3s"
//	home_page = "link://open/about"
//
//	[document]
//	script_timeout = "5s"
//	flash = true
//
//	[logging]
//	level = "info"
//
// Unknown keys are rejected with the line and column of the first one.
// Paths may start with ~/.
//
// # Live reload
//
// Loader.Watch reloads the file when it changes and hands the new Config,
// or the error that prevented loading it, to a callback. Only settings that
// can change at runtime (the log level) are expected to be applied.
package config
