// Package userauth drives the Twitch OAuth authorization code grant flow on
// behalf of the client application, as described in
// https://dev.twitch.tv/docs/authentication/getting-tokens-oauth/#authorization-code-grant-flow
//
// The client application calls GET /auth/init to obtain an authorization URL
// for id.twitch.tv, embedding our client ID, the scopes declared in the root
// package, and a freshly generated anti-forgery state value. Once the user
// grants access, Twitch redirects their browser back to GET /auth/callback
// with an authorization code and the echoed state. The callback handler
// verifies the state against the set of states we actually issued, exchanges
// the code for a user access token, resolves the identity of the granting
// user, and parks the resulting credential in the handoff store. The browser
// is then redirected to the client application carrying only the opaque
// handoff key; the tokens themselves never transit the browser.
package userauth
