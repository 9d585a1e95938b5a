// Package identity maps authenticated principals onto Atrium users.
//
// A Verifier turns a raw OpenID Connect ID token into Claims. The Directory resolves those
// claims to a User row, creating it on first sight and refreshing email and display name on
// later logins. Emails are stored normalized (trimmed, lowercased) so invitation matching is
// a plain equality check.
package identity
