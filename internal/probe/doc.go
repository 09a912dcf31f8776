// Package probe provides ffprobe-based media inspection and typed result
// structures. One JSON call per file yields streams and container metadata;
// a second, frame-level call yields header attributes such as timecode that
// image formats only expose per frame.
//
// Files: prober.go (Prober, ParseJSON, wire types), types.go (result types),
// hdr.go (transfer classification), interlace.go (field order).
package probe
