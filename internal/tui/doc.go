// Package tui renders live progress of a flow run in the terminal.
//
// RunApp is a bubbletea model fed by ProgressMsg values, usually relayed
// from a progress.ChannelSink with Forward, and finished with a DoneMsg.
package tui
