// Package handoff implements the short-lived, one-time-use store through which
// a freshly issued Twitch credential is handed to the client application.
//
// When the OAuth callback completes a token exchange, the resulting credential
// is not returned in the redirect: instead it is stashed in this store under a
// random, unguessable key, and only that key is exposed to the browser. The
// client application then calls GET /auth/data/{key} exactly once to collect
// the credential; the read removes the entry atomically, so a second read of
// the same key (or a read of a key that was never issued) always fails. Any
// entry that is never collected is removed unconditionally once its TTL
// elapses, so no credential lingers in memory indefinitely.
//
// The store is deliberately memory-only: entries are lost on restart, and the
// flow simply starts over. There is no way to read an entry without consuming
// it.
package handoff
