// Package collection implements the collection registry: owned groups of
// items with an optional size limit that can be set once, a global maximum
// size, and an irreversible close. A collection can only be burned empty.
package collection
