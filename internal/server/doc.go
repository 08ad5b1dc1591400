// Package server implements the core HTTP and WebSocket relay functionality for RelayChat.
//
// The implementation is organized into specialized files for configuration, the
// routing core, hub management, clients, routing, and HTTP handlers to keep the
// codebase maintainable and testable as the project grows.
package server
