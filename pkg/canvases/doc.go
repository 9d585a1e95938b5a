// Package canvases keeps exactly one default canvas per workspace.
//
// The invariant is backed by a partial unique index on (workspace_id) WHERE is_default, so
// storage rejects a second default no matter which code path attempts it. On top of that:
//
//   - the first canvas of a workspace is made default inside its INSERT statement
//   - SetDefaultCanvas swaps the default in one transaction with two guarded updates; a guard
//     that matches no row means another writer won, and the caller gets ErrConflict
//   - the default canvas cannot be deleted while other canvases exist
//
// Backfill brings workspaces created before canvases existed into line, and is safe to re-run.
package canvases
