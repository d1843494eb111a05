// Package playhead samples a media source's playback position and
// publishes it when it changes.
//
// While a source is attached the Publisher reads CurrentTime once per
// Config.Interval. A reading that differs from the last published one is
// handed to the Sink; an equal reading publishes nothing, so a paused
// player produces no traffic.
package playhead
