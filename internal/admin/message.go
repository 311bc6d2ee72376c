// Package admin encodes and decodes the controller<->node admin
// protocol: commands (INIT, START, STOP, SHUTDOWN, MOVE_DATA,
// RECEIVE_DATA) and the node's ACK, carried as JSON payloads in a
// node's DCS znode.
package admin

import "encoding/json"

// OpType identifies an admin command or acknowledgement.
type OpType string

const (
	OpInit        OpType = "INIT"
	OpStart       OpType = "START"
	OpStop        OpType = "STOP"
	OpShutdown    OpType = "SHUTDOWN"
	OpMoveData    OpType = "MOVE_DATA"
	OpReceiveData OpType = "RECEIVE_DATA"
	OpAck         OpType = "ACK"
)

// Range is the hex-encoded 128-bit (low, high] interval carried by a
// MOVE_DATA command.
type Range struct {
	Low  string `json:"low"`
	High string `json:"high"`
}

// Message is the self-describing admin record exchanged between the
// controller and a node: a command from controller to node, or an ACK
// from node to controller, both written to the same znode.
type Message struct {
	OpType      OpType `json:"opType"`
	Range       *Range `json:"range,omitempty"`
	Destination string `json:"destination,omitempty"`
	Payload     []byte `json:"payload,omitempty"`
	// Seq lets a node distinguish a freshly re-sent command from one
	// it has already acknowledged, per spec.md's idempotence note.
	Seq int64 `json:"seq,omitempty"`
}

// Encode serializes m to its wire form.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses the wire form of an admin message.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	return m, nil
}

// NewCommand builds a plain command message with no range/destination.
func NewCommand(op OpType, seq int64) Message {
	return Message{OpType: op, Seq: seq}
}

// NewMoveData builds a MOVE_DATA command addressed to destination.
func NewMoveData(low, high, destination string, seq int64) Message {
	return Message{
		OpType:      OpMoveData,
		Range:       &Range{Low: low, High: high},
		Destination: destination,
		Seq:         seq,
	}
}

// NewAck builds the node's acknowledgement for seq.
func NewAck(seq int64) Message {
	return Message{OpType: OpAck, Seq: seq}
}

// IsAckFor reports whether m acknowledges the command with sequence seq.
func (m Message) IsAckFor(seq int64) bool {
	return m.OpType == OpAck && m.Seq == seq
}
