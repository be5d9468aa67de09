// Package audiosink implements the timestamp-to-sample-offset translation
// and clock-slaving core of an audio sink renderer.
//
// It accepts a timestamped stream of audio buffers from an upstream producer
// and hands the samples to a ring buffer at exactly the right rate and
// instant, while keeping the ring buffer's clock slaved to a pipeline-wide
// reference clock. The ring buffer's device I/O, format negotiation and
// surrounding pipeline plumbing are external collaborators reached only
// through the interfaces declared in this package.
package audiosink
