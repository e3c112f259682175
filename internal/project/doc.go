// Package project resolves file names reported by a debug target to files
// inside the project workspace.
//
// Targets report the file of a break location the way their runtime knows
// it: an absolute path, a path relative to the project root (the target's
// working directory), or just a base name. Workspace accepts all three.
package project
