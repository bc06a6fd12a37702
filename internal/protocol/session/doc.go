// Package session owns the OD4 publish/subscribe session.
//
// Ownership boundary:
// - transport dial for one conference id (CID)
// - messageID dispatch table and receive goroutine
// - envelope stamping and send
// - transport security config shared by TLS-capable transports
package session
