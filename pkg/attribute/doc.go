// Package attribute keeps one window's copy of one session field in sync
// with the holder.
//
// A Channel issues exactly one read when it opens and, if asked to,
// listens for the field's push event. Set sends a write and returns when
// the holder acknowledges it; the local value only changes when the
// resulting push (or a later read) arrives. This keeps every window
// showing the holder's value rather than its own guess.
//
// A push that arrives while a read is outstanding wins over that read:
// the read's reply is discarded when it lands, logged as a stale write
// and counted in StaleDiscards.
package attribute
