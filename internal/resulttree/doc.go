// Package resulttree holds the in-memory tree of collected tests and their
// last known results.
//
// Branches group tests (directories, files, classes, parameter groups) and
// leaves are single test cases. A branch's status is derived from its
// children using the precedence
//
//	init < skipped < passed < failed < running
//
// The Tree type pairs the root with an identifier index. Freshly collected
// fragments are folded in with Merge, which replaces the children of the
// branch at the fragment's identifier; grandchildren are not diffed.
// Remove detaches a node and prunes ancestors left empty.
//
// Nothing in this package is synchronized. The orchestrator owns the tree
// and mutates it from a single goroutine.
package resulttree
