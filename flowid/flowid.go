// Package flowid implements the direction-independent 5-tuple flow
// identifier used to index TCP connections.
package flowid

import "encoding/binary"

// ID is the canonical, direction-independent 5-tuple for a TCP
// connection. (ip_a, port_a) is always the endpoint with the numerically
// smaller IPv4 address, ties broken by the lower port, so that both
// directions of a connection hash and compare equal.
type ID struct {
	IPA   uint32
	IPB   uint32
	PortA uint16
	PortB uint16
}

// Canonicalize builds the canonical ID for a connection observed between
// (srcIP, srcPort) and (dstIP, dstPort). It does not matter which side is
// passed as src and which as dst; the result is identical either way.
func Canonicalize(srcIP, dstIP uint32, srcPort, dstPort uint16) ID {
	if srcIP < dstIP || (srcIP == dstIP && srcPort < dstPort) {
		return ID{IPA: srcIP, IPB: dstIP, PortA: srcPort, PortB: dstPort}
	}
	return ID{IPA: dstIP, IPB: srcIP, PortA: dstPort, PortB: srcPort}
}

// IPv4ToUint32 converts a 4-byte big-endian IPv4 address to its host-order
// uint32 representation, as required by packet accessors that hand back
// wire-order bytes (see spec.md §6).
func IPv4ToUint32(b [4]byte) uint32 {
	return binary.BigEndian.Uint32(b[:])
}

// BucketCount is the fixed, prime bucket count used by flowindex. It is
// declared here, rather than in flowindex, because the hash function over
// an ID is a property of the ID type, not of any particular table.
const BucketCount = 2000003

// Hash combines the four ID components by XOR of constant-offset values,
// as in the original (hashtable.c:hashtable_compute_hash). Any mixing
// function that distributes roughly evenly would do; this one is kept
// for parity with the reference implementation.
func (id ID) Hash() uint64 {
	key := (1 + uint64(id.IPA)) ^ (2 + uint64(id.IPB)) ^ (4 + uint64(id.PortA)) ^ (8 + uint64(id.PortB))
	return key % BucketCount
}
