// Package wire defines every message that crosses the cluster bus and
// the frame codec for them. Sender identity is carried by the transport,
// not repeated inside the payloads.
package wire

import (
	"github.com/YinWang3026/dynago/pkg/model"
)

const (
	MT_CLIENT_GET_REQ  byte = 0x01
	MT_CLIENT_GET_RESP byte = 0x02
	MT_CLIENT_PUT_REQ  byte = 0x03
	MT_CLIENT_PUT_RESP byte = 0x04

	MT_COORD_GET_REQ  byte = 0x10
	MT_COORD_GET_RESP byte = 0x11
	MT_COORD_PUT_REQ  byte = 0x12
	MT_COORD_PUT_RESP byte = 0x13

	MT_REDIRECT_REQ byte = 0x20
	MT_REDIRECT_ACK byte = 0x21

	MT_HANDOFF_REQ  byte = 0x30
	MT_HANDOFF_RESP byte = 0x31

	MT_ALIVE_CHECK_REQ  byte = 0x40
	MT_ALIVE_CHECK_RESP byte = 0x41

	MT_CRASH   byte = 0x50
	MT_RECOVER byte = 0x51

	MT_GET_STATE_REQ  byte = 0x60
	MT_GET_STATE_RESP byte = 0x61

	MT_MERKLE_SYNC_REQ  byte = 0x70
	MT_MERKLE_SYNC_RESP byte = 0x71
)

// Message is the tagged sum of everything a node can receive.
type Message interface {
	Kind() byte
}

// --- client <-> node ---

type ClientGetRequest struct {
	Nonce uint64
	Key   string
}

type ClientGetResponse struct {
	Nonce   uint64
	Success bool
	Values  [][]byte
	Context model.Context
}

type ClientPutRequest struct {
	Nonce   uint64
	Key     string
	Value   []byte
	Context model.Context
}

type ClientPutResponse struct {
	Nonce   uint64
	Success bool
	Value   []byte
	Context model.Context
}

// --- node <-> node ---

type CoordinatorGetRequest struct {
	Nonce uint64
	Key   string
}

type CoordinatorGetResponse struct {
	Nonce   uint64
	Values  [][]byte
	Context model.Context
}

// CoordinatorPutRequest's context may carry a hint naming the natural
// owner the recipient stands in for.
type CoordinatorPutRequest struct {
	Nonce   uint64
	Key     string
	Value   []byte
	Context model.Context
}

type CoordinatorPutResponse struct {
	Nonce uint64
}

// RedirectedClientRequest wraps an original client frame so the chosen
// coordinator can process it as its own.
type RedirectedClientRequest struct {
	Client  model.NodeID
	Request []byte
}

type RedirectAcknowledgement struct {
	Nonce uint64
}

// HandoffRequest batches every hinted key destined for the recovered
// owner. Contexts travel hint-free.
type HandoffRequest struct {
	Nonce uint64
	Data  map[string]model.Versioned
}

type HandoffResponse struct {
	Nonce uint64
}

type AliveCheckRequest struct{}

type AliveCheckResponse struct{}

// Crash and Recover simulate node failure; only the harness sends them.
type Crash struct{}

type Recover struct{}

type GetStateRequest struct {
	Nonce uint64
}

// StateSnapshot is the full observable state of one node, for tests.
type StateSnapshot struct {
	ID    model.NodeID
	N     int
	R     int
	W     int
	Store map[string]model.Versioned
	Alive map[model.NodeID]bool
}

type GetStateResponse struct {
	Nonce uint64
	State StateSnapshot
}

// MerkleSyncRequest opens an anti-entropy round: the initiator ships its
// whole level matrix; the descent on the receiver bounds which leaves
// come back.
type MerkleSyncRequest struct {
	Nonce  uint64
	Levels [][][]byte
}

type SyncEntry struct {
	Key     string
	Values  [][]byte
	Context model.Context
}

type MerkleSyncResponse struct {
	Nonce   uint64
	Entries []SyncEntry
}

func (ClientGetRequest) Kind() byte        { return MT_CLIENT_GET_REQ }
func (ClientGetResponse) Kind() byte       { return MT_CLIENT_GET_RESP }
func (ClientPutRequest) Kind() byte        { return MT_CLIENT_PUT_REQ }
func (ClientPutResponse) Kind() byte       { return MT_CLIENT_PUT_RESP }
func (CoordinatorGetRequest) Kind() byte   { return MT_COORD_GET_REQ }
func (CoordinatorGetResponse) Kind() byte  { return MT_COORD_GET_RESP }
func (CoordinatorPutRequest) Kind() byte   { return MT_COORD_PUT_REQ }
func (CoordinatorPutResponse) Kind() byte  { return MT_COORD_PUT_RESP }
func (RedirectedClientRequest) Kind() byte { return MT_REDIRECT_REQ }
func (RedirectAcknowledgement) Kind() byte { return MT_REDIRECT_ACK }
func (HandoffRequest) Kind() byte          { return MT_HANDOFF_REQ }
func (HandoffResponse) Kind() byte         { return MT_HANDOFF_RESP }
func (AliveCheckRequest) Kind() byte       { return MT_ALIVE_CHECK_REQ }
func (AliveCheckResponse) Kind() byte      { return MT_ALIVE_CHECK_RESP }
func (Crash) Kind() byte                   { return MT_CRASH }
func (Recover) Kind() byte                 { return MT_RECOVER }
func (GetStateRequest) Kind() byte         { return MT_GET_STATE_REQ }
func (GetStateResponse) Kind() byte        { return MT_GET_STATE_RESP }
func (MerkleSyncRequest) Kind() byte       { return MT_MERKLE_SYNC_REQ }
func (MerkleSyncResponse) Kind() byte      { return MT_MERKLE_SYNC_RESP }
