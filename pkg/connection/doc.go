// Package connection keeps a window linked to a holder that runs in
// another process.
//
// A Manager owns the link lifecycle. The first connect is made by the
// caller; after that every loss of the link starts a reconnect loop
// with exponential backoff:
//
//  1. Initial delay: 250 milliseconds
//  2. Doubling: 500ms, 1s, 2s, 4s, 8s
//  3. Maximum delay: 10 seconds, repeated until the holder is back
//  4. Reset to the initial delay once a connect succeeds
//
// # Jitter
//
// Windows started together would otherwise redial in lockstep:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// A connect succeeds once the socket is dialled and the window has
// completed its initial reads. A connect that fails after dialling does
// not reset the backoff.
package connection
