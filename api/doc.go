// Package api is the gateway's HTTP surface: the OpenAI-compatible
// transcription endpoint, its short alias, health and API docs.
//
// A transcription request moves through admission, a working file, the
// model gate and the model itself; the working file is removed and the gate
// released on every path before the response is written.
package api
