// Package invites issues and redeems time-limited workspace invitations.
//
// An invitation starts pending and moves exactly once to accepted, rejected, expired or
// cancelled. Every transition is a guarded UPDATE on status = 'pending', so concurrent
// accepts, rejects, cancels and sweeps are totally ordered by the database and only one
// of them wins. Expiry is applied lazily when a token is redeemed and periodically by the
// Sweeper.
package invites
