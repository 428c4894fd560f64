// Package id generates request identifiers.
//
// Request IDs are ULIDs: 26 Crockford base32 characters encoding a
// millisecond timestamp followed by 80 bits of crypto/rand entropy. IDs from
// one Generator are strictly increasing, so a sorted list of dispatch events
// by requestId is also sorted by arrival.
package id
