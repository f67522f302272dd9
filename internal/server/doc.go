// Package server exposes the echo chamber over HTTP.
//
// Each accepted WebSocket connection is wrapped in a Channel (conn.go) and
// driven by a Session (session.go), which registers the connection's outbound
// endpoint with the hub and relays every inbound text message to all
// registered clients. Routes, handlers and the HTTP lifecycle live in
// routes.go, handlers.go and http_server.go.
package server
