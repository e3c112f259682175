// Package event provides a small publish/subscribe bus for editor-facing
// notifications.
//
// Topics follow a dot-notation hierarchy:
//   - debug.session.started, debug.session.paused, debug.session.stopped
//   - debug.exception.raised, debug.message.unknown
//
// A subscription may name an exact topic or a wildcard pattern ending in
// ".*" ("debug.*" matches "debug.session.started"), or "*" for everything.
package event
