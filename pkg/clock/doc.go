// Package clock abstracts wall-clock time and scheduled callbacks so
// samplers and simulated media can be driven deterministically in tests.
//
// Production code takes a Clock and is handed Real(). Tests hand it a
// FakeClock and move time with Advance; scheduled callbacks run
// synchronously inside Advance, in deadline order.
package clock
