// Package engine drives the conversation loop: it sends an agent's history to
// its model backend, detects tool invocations in the reply regardless of
// whether they arrive as structured function calls or as inline tag blocks,
// dispatches them through the tool catalog or the delegation router, replays
// results into the history, and repeats until the model produces a final
// answer or signals completion explicitly.
//
// Delegation between agents is synchronous: the source conversation suspends
// until the target agent's turn completes. A DelegationContext travels with
// every hop and rejects cycles and over-deep chains before any further
// backend call is made.
package engine
