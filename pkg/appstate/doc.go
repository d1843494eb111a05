// Package appstate groups the attribute channels one consumer needs.
//
// A Facade opens one attribute.Channel per field enabled in its Config.
// Facades never share channels: two facades asking for the same field
// each get their own channel, and they agree only because the holder
// pushes every change to both.
package appstate
