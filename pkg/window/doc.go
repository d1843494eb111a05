// Package window composes the application's windows from the state
// facade, the playhead publisher and the viewport controller.
//
// A Main window owns the video player and the file operations. A Plot
// window owns the chart viewport. Both talk to the holder only through
// a transport.Transport, so they behave the same whether they share a
// process with the holder or attach over a socket.
//
// User interface concerns are collaborators: a Picker chooses files, a
// Confirmer asks before discarding changes, a Notifier shows results,
// a MediaOpener loads videos and a viewport.Chart draws ranges.
package window
