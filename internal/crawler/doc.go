// Package crawler implements the ladder battle crawler: the battle
// normalizer, the frontier priority rule, the bounded-concurrency fetch
// engine and the upstream API session policy it relies on.
//
// The Engine is a pull iterator. A single caller drives it through Next; all
// frontier and bookkeeping state is owned by that caller, while battlelog
// requests run on short-lived goroutines that report back over a channel.
package crawler
