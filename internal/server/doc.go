// Package server wires the HTTP/WebSocket surface: REST endpoints for
// session lifecycle and metrics polling, and a WebSocket stream endpoint
// that attaches a renderer to a session's flow engine.
package server
