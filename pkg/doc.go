// Package dlprobe measures download throughput against an ndt7-style
// measurement server and exposes the results as a live, ordered stream of
// structured events.
//
// Library callers drive a Session directly: Start a measurement, pull
// events with NextEvent until the stream ends, and optionally Stop early.
// Embedders that need a serialized surface use Bridge, which accepts JSON
// settings and hands out owned event strings with explicit release
// semantics.
package dlprobe
