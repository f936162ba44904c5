package prover

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Proof is the opaque proof and the public inputs it commits to.
type Proof struct {
	Bytes        []byte
	PublicInputs [][32]byte
}

var proofArgs = func() abi.Arguments {
	b, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(err)
	}
	inputs, err := abi.NewType("bytes32[]", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: b}, {Type: inputs}}
}()

// ABI encodes the proof as abi.encode(bytes proof, bytes32[] publicInputs).
func (p *Proof) ABI() ([]byte, error) {
	inputs := p.PublicInputs
	if inputs == nil {
		inputs = [][32]byte{}
	}
	return proofArgs.Pack(p.Bytes, inputs)
}

// DecodeProof reverses Proof.ABI.
func DecodeProof(data []byte) (*Proof, error) {
	out, err := proofArgs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("decode proof: %w", err)
	}
	b, ok := out[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("decode proof: unexpected type %T", out[0])
	}
	inputs, ok := out[1].([][32]byte)
	if !ok {
		return nil, fmt.Errorf("decode proof: unexpected type %T", out[1])
	}
	return &Proof{Bytes: b, PublicInputs: inputs}, nil
}

func (p *Proof) Equal(o *Proof) bool {
	if !bytes.Equal(p.Bytes, o.Bytes) || len(p.PublicInputs) != len(o.PublicInputs) {
		return false
	}
	for i := range p.PublicInputs {
		if p.PublicInputs[i] != o.PublicInputs[i] {
			return false
		}
	}
	return true
}

// wireProof is the response body of remote provers.
type wireProof struct {
	Proof        hexutil.Bytes `json:"proof"`
	PublicInputs []common.Hash `json:"public_inputs"`
}

func (w *wireProof) proof() *Proof {
	p := &Proof{Bytes: w.Proof, PublicInputs: make([][32]byte, len(w.PublicInputs))}
	for i, h := range w.PublicInputs {
		p.PublicInputs[i] = h
	}
	return p
}

func toWireProof(p *Proof) *wireProof {
	w := &wireProof{Proof: p.Bytes, PublicInputs: make([]common.Hash, len(p.PublicInputs))}
	for i, h := range p.PublicInputs {
		w.PublicInputs[i] = h
	}
	return w
}
