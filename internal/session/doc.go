// Package session holds the in-memory access token of an authenticated API session
// and coordinates token refreshes between concurrent requests.
//
// A Session is the single source of truth for the bearer token attached to outgoing
// requests. The token is never persisted; it lives from a successful login or refresh
// until logout, a failed refresh, or Close.
//
// # Refresh coordination
//
// When several requests hit an expired token at the same time, only the first one
// (the leader) performs the refresh round-trip. Every other request that reports a
// 401 while the refresh is in flight waits for its outcome:
//
//	cred := sess.Current()
//	// ... send request with cred, observe 401 ...
//	token, err := sess.AwaitRefresh(ctx, cred.Generation, refreshFunc)
//
// On success the new token is stored before any waiter is released, so every replay
// carries it. On failure the token is cleared and every waiter receives the refresh
// error, in registration order. A refresh that panics counts as a failure: waiters are
// released with an error and the panic continues in the leader.
//
// Those are the outcomes AwaitRefresh reports. client.Client.Do translates them for its
// own callers: a failed refresh surfaces as the caller's original 401 (*client.APIError),
// except client.ErrMissingCSRFToken, which is returned unchanged.
package session
