// Package util provides shared utility functions.
package util

import "hash/fnv"

// PeerTag computes a 4-byte hash from a peer's remote address, rendered as
// [%08x] in log lines. The hash is used solely for identification and does
// not need to be reversible.
func PeerTag(addr string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(addr))
	return h.Sum32()
}
