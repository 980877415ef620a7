// Package plugin loads browser plugins from module archives.
//
// A module archive is a zip file (extension .zip or .lbp by default) in the
// plugins directory. It carries a manifest and the Lua sources of its entry
// points:
//
//	status-bar.lbp
//	├── plugin.json      # or plugin.yaml
//	├── init.lua         # entry point
//	└── lib/
//	    └── util.lua     # require("lib.util")
//
// The manifest lists entry points. Lua entries name a file in the archive;
// native entries name a factory registered with Register at build time:
//
//	{
//	  "name": "status-bar",
//	  "version": "1.0.0",
//	  "description": "Shows the page title",
//	  "entries": [
//	    {"kind": "lua", "main": "init.lua"},
//	    {"kind": "native", "id": "status-overlay"}
//	  ]
//	}
//
// An archive without a manifest but with init.lua is loaded with a minimal
// manifest named after the file.
//
// A Lua entry returns a table with name, initialize and shutdown:
//
//	return {
//	  name = "status-bar",
//	  initialize = function(host)
//	    host.add_script("document.title = document.title + ' *'")
//	    host.add_bridge("statusBar", { ping = function() return "pong" end })
//	  end,
//	  shutdown = function() end,
//	}
//
// Each archive runs in its own Lua state. Failures are isolated per archive
// and per entry, and Initialize is bounded by a timeout; registrations made by
// a plugin that fails or times out never reach the injector.
package plugin
