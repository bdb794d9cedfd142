package dwp

import (
	"encoding/json"

	"github.com/gobwas/ws"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes frames for the wire.
type Codec interface {
	Encode(frame *Frame) ([]byte, error)
	Decode(data []byte) (*Frame, error)
	Name() string
	// OpCode is the WebSocket opcode frames are sent with.
	OpCode() ws.OpCode
}

const (
	CodecNameJSON    = "json"
	CodecNameMsgpack = "msgpack"
)

// GetCodec returns the codec called name. Unknown names get JSON.
func GetCodec(name string) Codec {
	if name == CodecNameMsgpack {
		return MsgpackCodec{}
	}
	return JSONCodec{}
}

// JSONCodec sends frames as text messages.
type JSONCodec struct{}

func (JSONCodec) Encode(frame *Frame) ([]byte, error) { return json.Marshal(frame) }

func (JSONCodec) Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (JSONCodec) Name() string      { return CodecNameJSON }
func (JSONCodec) OpCode() ws.OpCode { return ws.OpText }

// MsgpackCodec sends frames as binary messages. Frame data stays JSON
// inside the msgpack envelope.
type MsgpackCodec struct{}

func (MsgpackCodec) Encode(frame *Frame) ([]byte, error) { return msgpack.Marshal(frame) }

func (MsgpackCodec) Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (MsgpackCodec) Name() string      { return CodecNameMsgpack }
func (MsgpackCodec) OpCode() ws.OpCode { return ws.OpBinary }
