// Package node defines the ECS's Node record: identity, ring hash,
// assigned range, lifecycle status, and cache policy. There is no
// inheritance here by design — "interfaces" in the source this spec
// was distilled from become plain capability records in Go.
package node

import (
	"crypto/md5"
	"fmt"
)

// Status is the node's position in the lifecycle state machine.
//
//	IDLE -> INACTIVE -> STOPPED <-> ACTIVE -> REMOVED
type Status string

const (
	StatusIdle     Status = "IDLE"
	StatusInactive Status = "INACTIVE"
	StatusStopped  Status = "STOPPED"
	StatusActive   Status = "ACTIVE"
	StatusRemoved  Status = "REMOVED"
)

// CacheStrategy is the opaque cache-eviction policy forwarded to the
// storage node; the ECS never interprets it.
type CacheStrategy string

const (
	CacheFIFO CacheStrategy = "FIFO"
	CacheLRU  CacheStrategy = "LRU"
	CacheLFU  CacheStrategy = "LFU"
)

// CachePolicy is the opaque per-node cache configuration sent as the
// INIT admin payload.
type CachePolicy struct {
	Strategy CacheStrategy `json:"strategy"`
	Size     int           `json:"size"`
}

// Hash128 is an unsigned 128-bit value, stored as two big-endian
// halves so comparisons stay unsigned regardless of platform int size.
type Hash128 struct {
	Hi uint64
	Lo uint64
}

// Less reports whether h is strictly less than other, using unsigned
// comparison of both halves.
func (h Hash128) Less(other Hash128) bool {
	if h.Hi != other.Hi {
		return h.Hi < other.Hi
	}
	return h.Lo < other.Lo
}

// Equal reports whether h and other are the same 128-bit value.
func (h Hash128) Equal(other Hash128) bool {
	return h.Hi == other.Hi && h.Lo == other.Lo
}

// String renders the hash as 32 lowercase hex characters, matching the
// metadata snapshot format in spec.md §6.
func (h Hash128) String() string {
	return fmt.Sprintf("%016x%016x", h.Hi, h.Lo)
}

// HashKey computes the 128-bit MD5 digest of key.
func HashKey(key string) Hash128 {
	sum := md5.Sum([]byte(key))
	return Hash128{
		Hi: beUint64(sum[0:8]),
		Lo: beUint64(sum[8:16]),
	}
}

// HashAddress computes the ring hash of a node's host:port identity,
// matching the original implementation's ECSNode hash derivation.
func HashAddress(host string, port int) Hash128 {
	return HashKey(fmt.Sprintf("%s:%d", host, port))
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// Range is a node's assigned key-space interval: (Lower, Upper], where
// a wrap-around range has Lower > Upper.
type Range struct {
	Lower Hash128
	Upper Hash128
}

// Contains reports whether hash falls in the (Lower, Upper] interval,
// handling the wrap-around case per spec.md §4.1.
func (r Range) Contains(hash Hash128) bool {
	if r.Lower.Equal(r.Upper) {
		// single-node ring: the range covers the full key space.
		return true
	}
	if r.Lower.Less(r.Upper) {
		return r.Lower.Less(hash) && !r.Upper.Less(hash)
	}
	// wrap-around: hash > lower OR hash <= upper
	return r.Lower.Less(hash) || !r.Upper.Less(hash)
}

// Node is the ECS's identity/status/range record for one storage node.
type Node struct {
	Name    string
	Host    string
	Port    int
	Hash    Hash128
	Range   Range
	Status  Status
	Policy  CachePolicy
	Version int
}

// New creates a node in the IDLE state with its ring hash computed
// from host:port.
func New(name, host string, port int) *Node {
	return &Node{
		Name:   name,
		Host:   host,
		Port:   port,
		Hash:   HashAddress(host, port),
		Status: StatusIdle,
	}
}

// Address returns the "host:port" identity string used for the ring
// hash and for admin message destinations.
func (n *Node) Address() string {
	return fmt.Sprintf("%s:%d", n.Host, n.Port)
}

// SetStatus transitions the node to status, bumping its version. The
// caller (the controller's serialized control loop) is responsible for
// enforcing the legal-transition invariant; this is a plain setter.
func (n *Node) SetStatus(status Status) {
	n.Status = status
	n.Version++
}
