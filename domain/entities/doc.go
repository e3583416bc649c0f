// Package entities provides the core domain types shared by the bridge and plugins.
// They describe what crosses the host boundary (host state, mutation outcomes)
// without depending on cgo, so plugins and tests can use them freely.
package entities
