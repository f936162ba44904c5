package authmsg

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Fixture is the JSON document written for downstream contract tests. It
// deliberately has no salt field.
type Fixture struct {
	EmailAuthMsg *Message      `json:"emailAuthMsg"`
	Encoded      hexutil.Bytes `json:"encoded"`
	MessageHash  common.Hash   `json:"messageHash"`
	// Hash is the value the command signed, as it appeared in the email.
	Hash       string `json:"hash,omitempty"`
	Domain     string `json:"domain"`
	TemplateID string `json:"templateId"`
}

func NewFixture(m *Message, domain, hash string) (*Fixture, error) {
	encoded, err := m.Encode()
	if err != nil {
		return nil, err
	}
	h, err := m.Hash()
	if err != nil {
		return nil, err
	}
	return &Fixture{
		EmailAuthMsg: m,
		Encoded:      encoded,
		MessageHash:  h,
		Hash:         hash,
		Domain:       domain,
		TemplateID:   hexutil.EncodeBig(m.TemplateID),
	}, nil
}

// JSON renders the fixture indented, with a trailing newline.
func (f *Fixture) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// ParseFixture reads a fixture and checks that the encoded bytes match the
// message.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if f.EmailAuthMsg == nil {
		return nil, fmt.Errorf("parse fixture: emailAuthMsg missing")
	}
	encoded, err := f.EmailAuthMsg.Encode()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(encoded, f.Encoded) {
		return nil, fmt.Errorf("parse fixture: encoded bytes do not match emailAuthMsg")
	}
	return &f, nil
}
