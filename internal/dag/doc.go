// Package dag holds the dependency graph between service factories. It builds
// a directed graph of string ids, rejects cycles, and produces a deterministic
// instantiation order in which every node comes after all of its
// dependencies.
package dag
