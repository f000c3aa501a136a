// Package pattern executes task graphs. The engine dispatches on a graph's
// topology and drives its nodes through the step executor and the quality
// gate, threading compressed digests of upstream output along edges and
// recording the run in a core.RunState.
//
// Ten topologies are supported: solo, sequential, parallel, loop, wave,
// hierarchical, network, router, aggregator and human. They all compose the
// same primitive (execute one node with upstream context, walk the edges)
// with a topology specific order and success policy.
package pattern
