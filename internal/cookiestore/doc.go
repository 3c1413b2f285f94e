// Package cookiestore persists the session cookie set between CLI invocations.
//
// The stored value is an opaque blob (the cookie jar's JSON snapshot). Backends:
//   - File: local file with atomic writes and 0600 permissions
//   - Env: read-only environment variable, for sessions provisioned externally
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//   - Memory: process-local, nothing survives exit
//
// Access tokens are never stored here; they are minted again from the refresh cookie.
package cookiestore
