// Package viewport keeps a chart's visible time range on the playhead.
//
// The Controller has two modes. In ModeFollowing every playback sample
// moves the chart to [anchor+elapsed-Before, anchor+elapsed+After]. A
// range change the user makes on the chart switches to ModeManual, where
// samples are ignored until SetFollow(true) is called.
//
// Range commands are tagged. The chart echoes the tag of the command
// that caused a range change, so the controller can tell its own moves
// from the user's. A change with tag zero, or with a tag the controller
// never issued, is treated as user driven.
package viewport
