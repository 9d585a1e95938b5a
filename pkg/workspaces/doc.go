// Package workspaces stores workspaces and the memberships that attach users to them.
//
// Every membership write is a compare-and-swap against the row it read, and changes that
// could remove a workspace's last owner first take a row lock on the workspace so concurrent
// demotions serialize. Writes accept a storage.Querier so callers can compose them into a
// larger transaction, as invitation acceptance does.
package workspaces
