// Package raknetcore implements the data-plane core of a RakNet-compatible
// reliable-UDP transport: the wire codec, outgoing pipeline, incoming router,
// shared per-connection link, and flush strategy that together turn a raw UDP
// socket into a reliable, ordered, fragmentable message channel.
//
// The offline/handshake handler, fragment reassembly, and online ping/pong
// state are external collaborators; this package only defines the interfaces
// at which they attach.
package raknetcore

import (
	"fmt"
	"net"

	"github.com/google/uuid"
)

// Role identifies which side of a connection this process plays. Each role
// carries its own GUID, used together with the peer's GUID to form a
// connection identity.
type Role struct {
	name string
	guid uint64
}

// ClientRole constructs the client-side Role for the given GUID.
func ClientRole(guid uint64) Role { return Role{name: "client", guid: guid} }

// ServerRole constructs the server-side Role for the given GUID.
func ServerRole(guid uint64) Role { return Role{name: "server", guid: guid} }

// GUID returns this role's own GUID.
func (r Role) GUID() uint64 { return r.guid }

// String implements fmt.Stringer for log output.
func (r Role) String() string { return r.name }

// Peer describes the remote endpoint of a connection.
type Peer struct {
	Addr *net.UDPAddr
	GUID uint64
	MTU  uint16
}

// String implements fmt.Stringer for log output.
func (p Peer) String() string {
	return fmt.Sprintf("%s(guid=%d,mtu=%d)", p.Addr, p.GUID, p.MTU)
}

// ConnID is the (local_guid, peer_guid) pair identifying a connection for
// timer-reactor and metrics keying, per SPEC_FULL.md §3.1, plus a trace tag
// minted once when the connection is accepted and carried on every log
// line for its lifetime (§4.8).
type ConnID struct {
	Local uint64
	Peer  uint64
	Trace uuid.UUID
}

// NewConnID builds the connection identity from a local role and a peer,
// minting a fresh trace tag for it.
func NewConnID(role Role, peer Peer) ConnID {
	return ConnID{Local: role.GUID(), Peer: peer.GUID, Trace: NewTraceID()}
}

// String implements fmt.Stringer for log output.
func (c ConnID) String() string {
	return fmt.Sprintf("%d<->%d", c.Local, c.Peer)
}

// NewTraceID mints a random per-connection trace tag attached to every
// per-connection log line for that connection's lifetime (SPEC_FULL.md
// §3.1). Metrics do not carry it.
func NewTraceID() uuid.UUID {
	return uuid.New()
}
