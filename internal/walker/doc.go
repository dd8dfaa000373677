// Package walker computes export closures over the live store.
//
// Given seed nodes and groups, ComputeClosure follows links according to a
// traversal Policy and gathers everything that must travel with the
// included nodes: the links among them, external link stubs for links that
// cross the closure boundary, and the computers, users and groups the nodes
// reference.
//
// The walk is a breadth-first search in seed order, and the resulting
// closure is sorted, so the same store and seeds always give the same
// closure.
package walker
