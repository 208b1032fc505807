package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
)

// Frame layout: | 1B type | 4B big-endian length | gob payload |

var ErrUnknownType = errors.New("wire: unknown message type")

// Encode frames a message for the bus. Field-less messages travel as a
// bare tag; gob cannot encode them and they carry nothing anyway.
func Encode(msg Message) ([]byte, error) {
	var payload bytes.Buffer
	if !isBare(msg.Kind()) {
		if err := gob.NewEncoder(&payload).Encode(msg); err != nil {
			return nil, fmt.Errorf("wire: encode 0x%02x: %w", msg.Kind(), err)
		}
	}
	var buf bytes.Buffer
	buf.WriteByte(msg.Kind())
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(payload.Len()))
	buf.Write(l[:])
	buf.Write(payload.Bytes())
	return buf.Bytes(), nil
}

// Decode validates the frame and returns the typed message.
func Decode(frame []byte) (Message, error) {
	if len(frame) < 5 {
		return nil, errors.New("wire: short frame")
	}
	mt := frame[0]
	l := binary.BigEndian.Uint32(frame[1:5])
	if int(5+l) != len(frame) {
		return nil, errors.New("wire: length mismatch")
	}
	msg, err := blank(mt)
	if err != nil {
		return nil, err
	}
	if isBare(mt) {
		return deref(msg), nil
	}
	dec := gob.NewDecoder(bytes.NewReader(frame[5:]))
	if err := dec.Decode(msg); err != nil {
		return nil, fmt.Errorf("wire: decode 0x%02x: %w", mt, err)
	}
	return deref(msg), nil
}

func isBare(mt byte) bool {
	switch mt {
	case MT_ALIVE_CHECK_REQ, MT_ALIVE_CHECK_RESP, MT_CRASH, MT_RECOVER:
		return true
	}
	return false
}

func blank(mt byte) (any, error) {
	switch mt {
	case MT_CLIENT_GET_REQ:
		return &ClientGetRequest{}, nil
	case MT_CLIENT_GET_RESP:
		return &ClientGetResponse{}, nil
	case MT_CLIENT_PUT_REQ:
		return &ClientPutRequest{}, nil
	case MT_CLIENT_PUT_RESP:
		return &ClientPutResponse{}, nil
	case MT_COORD_GET_REQ:
		return &CoordinatorGetRequest{}, nil
	case MT_COORD_GET_RESP:
		return &CoordinatorGetResponse{}, nil
	case MT_COORD_PUT_REQ:
		return &CoordinatorPutRequest{}, nil
	case MT_COORD_PUT_RESP:
		return &CoordinatorPutResponse{}, nil
	case MT_REDIRECT_REQ:
		return &RedirectedClientRequest{}, nil
	case MT_REDIRECT_ACK:
		return &RedirectAcknowledgement{}, nil
	case MT_HANDOFF_REQ:
		return &HandoffRequest{}, nil
	case MT_HANDOFF_RESP:
		return &HandoffResponse{}, nil
	case MT_ALIVE_CHECK_REQ:
		return &AliveCheckRequest{}, nil
	case MT_ALIVE_CHECK_RESP:
		return &AliveCheckResponse{}, nil
	case MT_CRASH:
		return &Crash{}, nil
	case MT_RECOVER:
		return &Recover{}, nil
	case MT_GET_STATE_REQ:
		return &GetStateRequest{}, nil
	case MT_GET_STATE_RESP:
		return &GetStateResponse{}, nil
	case MT_MERKLE_SYNC_REQ:
		return &MerkleSyncRequest{}, nil
	case MT_MERKLE_SYNC_RESP:
		return &MerkleSyncResponse{}, nil
	}
	return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownType, mt)
}

func deref(p any) Message {
	switch m := p.(type) {
	case *ClientGetRequest:
		return *m
	case *ClientGetResponse:
		return *m
	case *ClientPutRequest:
		return *m
	case *ClientPutResponse:
		return *m
	case *CoordinatorGetRequest:
		return *m
	case *CoordinatorGetResponse:
		return *m
	case *CoordinatorPutRequest:
		return *m
	case *CoordinatorPutResponse:
		return *m
	case *RedirectedClientRequest:
		return *m
	case *RedirectAcknowledgement:
		return *m
	case *HandoffRequest:
		return *m
	case *HandoffResponse:
		return *m
	case *AliveCheckRequest:
		return *m
	case *AliveCheckResponse:
		return *m
	case *Crash:
		return *m
	case *Recover:
		return *m
	case *GetStateRequest:
		return *m
	case *GetStateResponse:
		return *m
	case *MerkleSyncRequest:
		return *m
	case *MerkleSyncResponse:
		return *m
	}
	panic("wire: unreachable")
}
