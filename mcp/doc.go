// Package mcp pools connections to Model Context Protocol servers and merges
// the tools they expose into the local tool catalog.
//
// A SessionPool owns one Session per server script. Sessions are dialed
// lazily, reused across calls and probed by a background health checker; an
// unhealthy session reconnects transparently on its next use. RegisterTools
// turns the remote catalog (tools and, optionally, resources) into ordinary
// local tool entries whose handlers forward through the pooled session, so
// the conversation engine never sees the transport.
package mcp
