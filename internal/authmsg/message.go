// Package authmsg assembles and encodes the authorization message consumed
// by on-chain verifiers.
package authmsg

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/dmitrijs2005/emailproof/internal/command"
	"github.com/dmitrijs2005/emailproof/internal/cryptox"
	"github.com/dmitrijs2005/emailproof/internal/prover"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var ErrTemplateIDMismatch = errors.New("template id does not match encoded command")

// Message is the authorization message. It is never modified after
// Assemble or Decode.
type Message struct {
	TemplateID           *big.Int
	CommandParams        []byte
	SkippedCommandPrefix *big.Int
	// Proof is abi.encode(bytes proof, bytes32[] publicInputs).
	Proof []byte
}

var messageArgs = func() abi.Arguments {
	u, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	b, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Name: "templateId", Type: u}, {Name: "commandParams", Type: b}, {Name: "skippedCommandPrefix", Type: u}, {Name: "proof", Type: b}}
}()

// Assemble binds the request's template id, the encoded command and the
// proof.
func Assemble(templateID *big.Int, enc *command.Encoded, proof *prover.Proof) (*Message, error) {
	if templateID == nil || enc.TemplateID.Cmp(templateID) != 0 {
		return nil, fmt.Errorf("%w: request %v, command %v", ErrTemplateIDMismatch, templateID, enc.TemplateID)
	}

	p, err := proof.ABI()
	if err != nil {
		return nil, fmt.Errorf("encode proof: %w", err)
	}

	return &Message{
		TemplateID:           new(big.Int).Set(templateID),
		CommandParams:        enc.ParamsABI(),
		SkippedCommandPrefix: big.NewInt(int64(enc.SkippedPrefix)),
		Proof:                p,
	}, nil
}

// Encode returns abi.encode(uint256, bytes, uint256, bytes). The output is
// byte-stable for equal messages.
func (m *Message) Encode() ([]byte, error) {
	return messageArgs.Pack(m.TemplateID, m.CommandParams, m.SkippedCommandPrefix, m.Proof)
}

// Hash is keccak256 of Encode.
func (m *Message) Hash() ([32]byte, error) {
	data, err := m.Encode()
	if err != nil {
		return [32]byte{}, err
	}
	return cryptox.Keccak256(data), nil
}

func Decode(data []byte) (*Message, error) {
	out, err := messageArgs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if len(out) != 4 {
		return nil, fmt.Errorf("decode message: %d fields", len(out))
	}

	m := &Message{}
	var ok [4]bool
	m.TemplateID, ok[0] = out[0].(*big.Int)
	m.CommandParams, ok[1] = out[1].([]byte)
	m.SkippedCommandPrefix, ok[2] = out[2].(*big.Int)
	m.Proof, ok[3] = out[3].([]byte)
	for i, v := range ok {
		if !v {
			return nil, fmt.Errorf("decode message: field %d has type %T", i, out[i])
		}
	}
	return m, nil
}

// Params returns the individually encoded command params.
func (m *Message) Params() ([][]byte, error) { return command.UnpackParams(m.CommandParams) }

// DecodedProof returns the proof and its public inputs.
func (m *Message) DecodedProof() (*prover.Proof, error) { return prover.DecodeProof(m.Proof) }

func (m *Message) Equal(o *Message) bool {
	return m.TemplateID.Cmp(o.TemplateID) == 0 &&
		bytes.Equal(m.CommandParams, o.CommandParams) &&
		m.SkippedCommandPrefix.Cmp(o.SkippedCommandPrefix) == 0 &&
		bytes.Equal(m.Proof, o.Proof)
}

type messageJSON struct {
	TemplateID           *hexutil.Big  `json:"templateId"`
	CommandParams        hexutil.Bytes `json:"commandParams"`
	SkippedCommandPrefix *hexutil.Big  `json:"skippedCommandPrefix"`
	Proof                hexutil.Bytes `json:"proof"`
}

func (m *Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageJSON{
		TemplateID:           (*hexutil.Big)(m.TemplateID),
		CommandParams:        m.CommandParams,
		SkippedCommandPrefix: (*hexutil.Big)(m.SkippedCommandPrefix),
		Proof:                m.Proof,
	})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var v messageJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.TemplateID == nil || v.SkippedCommandPrefix == nil {
		return errors.New("message: templateId and skippedCommandPrefix are required")
	}
	*m = Message{
		TemplateID:           v.TemplateID.ToInt(),
		CommandParams:        v.CommandParams,
		SkippedCommandPrefix: v.SkippedCommandPrefix.ToInt(),
		Proof:                v.Proof,
	}
	return nil
}
