// Package session persists the cloud session token across restarts.
//
// The mynexia.com service locks accounts after repeated logins, so the
// bridge must not burn a login attempt every time the daemon restarts. The
// store keeps the single token pair (mobile id + api key) in one SQLite
// row; the nexia client loads it on startup and replaces it after each
// fresh login.
//
// SQLiteStore satisfies the nexia.TokenStore interface.
package session
