// Package server implements the concurrent session and state engine of the
// bulletin board: connection acceptance and handshake, the group directory
// and message boards, per-session command dispatch, and best-effort
// notification broadcast.
//
// The implementation is organized into specialized files for configuration,
// hub management, sessions, board state, dispatch, routing, and HTTP
// handlers to keep the codebase maintainable and testable as the project
// grows.
package server
