// Package authz decides who may act on a workspace.
//
// The Resolver computes effective permissions from current membership state and never
// caches. The Gateway turns effective permissions into Decisions and runs every operation
// through a fixed interceptor chain:
//
//	recovery -> logging -> metrics -> tracing -> authorization -> operation
//
// A caller with no membership is told the workspace was not found, so a hidden workspace
// and a missing one look the same from outside.
//
// The Cache holds one Snapshot per user (workspace id to effective permissions) for
// clients that evaluate many workspaces at once, such as picking where to redirect after a
// workspace switch. Any mutation touching a user invalidates that user's whole entry.
package authz
