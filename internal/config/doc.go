// Package config loads the moaidebug configuration.
//
// Configuration comes from three layers, later layers overriding earlier
// ones:
//
//  1. Built-in defaults (Default)
//  2. A TOML (.toml) or YAML (.yaml, .yml) file
//  3. MOAIDEBUG_* environment variables
//
// Durations are written as Go duration strings ("5s", "250ms").
//
// Watch re-reads the file when it changes so a running debugger picks up
// new settings for its next session.
package config
