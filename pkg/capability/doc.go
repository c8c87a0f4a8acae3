// Package capability defines the machine-readable capability description that
// registered applications expose at their discovery URL, along with decoding
// and structural validation of the wire format.
//
// A capability descriptor lists an application's endpoints and, per endpoint,
// the recursive field trees of its request and response bodies. The permission
// package expands these trees into grantable permission keys.
package capability
