// Package device provides authenticated sessions against the RouterOS API.
//
// A [Session] wraps one TCP (or TLS) connection and exposes a single resource-call primitive, [Session.Call],
// which reads a collection ([Read]) or creates an entry ([Create]).
//
// Every failure is returned as an [*Error] whose Kind is one of:
//   - [shared.ErrConnection] : unreachable device, dial/TLS/transport failure, rejected login
//   - [shared.ErrCommunication] : malformed or unexpected protocol reply
//   - [shared.ErrDevice] : a !trap reply; the request was rejected but the session is still usable
//   - [shared.ErrSessionClosed] : use after close
//   - [shared.ErrUnknown] : anything else
//
// Errors carry the device address and resource path, never request parameters.
package device
