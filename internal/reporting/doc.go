// Package reporting renders result trees and run progress for the terminal.
//
// RenderTree draws a serialized tree with status symbols and environment
// badges. ConsoleReporter follows the event bus during a run and prints
// one line per finished test, the failure detail below each failure, and a
// summary once the run ends.
//
// Output is styled through the color package and truncated to the
// terminal width by display cells, so wide runes in test names do not
// break alignment.
package reporting
