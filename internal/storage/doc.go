// Package storage is detconsole's persistent key-value store: the session
// token and cached user settings survive between invocations here.
//
// Entries are JSON files under ~/.detconsole/storage/, one per key, each with
// its own expiry. Writes go through a temp file and a rename so a crash never
// leaves a half-written entry behind.
package storage
