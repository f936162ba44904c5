package prover

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/dmitrijs2005/emailproof/internal/canon"
	"github.com/dmitrijs2005/emailproof/internal/command"
	"github.com/dmitrijs2005/emailproof/internal/cryptox"
	"github.com/dmitrijs2005/emailproof/internal/dkim"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Witness is everything the circuit needs. It holds the account salt and has
// no serialized form outside the backends' wire encoding.
type Witness struct {
	TemplateID     *big.Int
	Domain         string
	Selector       string
	Algorithm      string
	Header         []byte
	Body           []byte
	HeaderRanges   []canon.SignedField
	BodyRange      canon.Range
	SubjectRange   canon.Range
	PublicKey      []byte
	KeyFingerprint [32]byte
	Params         [][]byte
	CommandHash    [32]byte
	CommandRange   canon.Range
	SkippedPrefix  int

	salt cryptox.AccountSalt
}

var ErrEmptySalt = errors.New("account salt is empty")

// NewWitness gathers the witness from the outputs of the earlier stages.
func NewWitness(e *canon.Email, v *dkim.Verified, enc *command.Encoded, salt cryptox.AccountSalt) (*Witness, error) {
	if salt.IsZero() {
		return nil, ErrEmptySalt
	}

	params := make([][]byte, len(enc.Params))
	for i, p := range enc.Params {
		params[i] = p.ABI
	}

	return &Witness{
		TemplateID:     new(big.Int).Set(enc.TemplateID),
		Domain:         v.Domain,
		Selector:       v.Selector,
		Algorithm:      v.Algorithm,
		Header:         e.Header,
		Body:           e.Body,
		HeaderRanges:   v.HeaderRanges,
		BodyRange:      v.BodyRange,
		SubjectRange:   v.SubjectRange,
		PublicKey:      v.PublicKey,
		KeyFingerprint: v.KeyFingerprint,
		Params:         params,
		CommandHash:    enc.Hash(),
		CommandRange:   enc.Range,
		SkippedPrefix:  enc.SkippedPrefix,
		salt:           salt,
	}, nil
}

// ExpectedPublicInputs is the prefix every valid proof must expose:
// key fingerprint, command hash and the skipped prefix as uint256.
func (w *Witness) ExpectedPublicInputs() [][32]byte {
	var skip [32]byte
	big.NewInt(int64(w.SkippedPrefix)).FillBytes(skip[:])
	return [][32]byte{w.KeyFingerprint, w.CommandHash, skip}
}

func (w *Witness) MarshalJSON() ([]byte, error) { return nil, cryptox.ErrSaltNotSerializable }

func (w *Witness) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("template_id", w.TemplateID.String()),
		slog.String("domain", w.Domain),
		slog.Int("header_len", len(w.Header)),
		slog.Int("body_len", len(w.Body)),
		slog.Int("params", len(w.Params)),
	)
}

func (w *Witness) String() string {
	return fmt.Sprintf("witness{template=%s domain=%s}", w.TemplateID, w.Domain)
}

type wireRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type wireField struct {
	Name  string `json:"name"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// wireWitness is the JSON body sent to remote provers.
type wireWitness struct {
	TemplateID           string          `json:"template_id"`
	Domain               string          `json:"domain"`
	Selector             string          `json:"selector"`
	Algorithm            string          `json:"algorithm"`
	Header               hexutil.Bytes   `json:"header"`
	Body                 hexutil.Bytes   `json:"body"`
	HeaderRanges         []wireField     `json:"header_ranges"`
	BodyRange            wireRange       `json:"body_range"`
	SubjectRange         wireRange       `json:"subject_range"`
	PublicKey            hexutil.Bytes   `json:"public_key"`
	KeyFingerprint       common.Hash     `json:"key_fingerprint"`
	CommandParams        []hexutil.Bytes `json:"command_params"`
	CommandHash          common.Hash     `json:"command_hash"`
	CommandRange         wireRange       `json:"command_range"`
	SkippedCommandPrefix int             `json:"skipped_command_prefix"`
	AccountSalt          hexutil.Bytes   `json:"account_salt"`
}

func (w *Witness) wire() *wireWitness {
	salt := w.salt.Reveal()

	out := &wireWitness{
		TemplateID:           w.TemplateID.String(),
		Domain:               w.Domain,
		Selector:             w.Selector,
		Algorithm:            w.Algorithm,
		Header:               w.Header,
		Body:                 w.Body,
		BodyRange:            wireRange(w.BodyRange),
		SubjectRange:         wireRange(w.SubjectRange),
		PublicKey:            w.PublicKey,
		KeyFingerprint:       w.KeyFingerprint,
		CommandHash:          w.CommandHash,
		CommandRange:         wireRange(w.CommandRange),
		SkippedCommandPrefix: w.SkippedPrefix,
		AccountSalt:          salt[:],
	}
	for _, f := range w.HeaderRanges {
		out.HeaderRanges = append(out.HeaderRanges, wireField{Name: f.Name, Start: f.Range.Start, End: f.Range.End})
	}
	for _, p := range w.Params {
		out.CommandParams = append(out.CommandParams, p)
	}
	return out
}

func (w *Witness) wireJSON() ([]byte, error) { return json.Marshal(w.wire()) }

// witnessFromWire is used by the serving side of the gRPC transport.
func witnessFromWire(in *wireWitness) (*Witness, error) {
	id, ok := new(big.Int).SetString(in.TemplateID, 10)
	if !ok {
		return nil, fmt.Errorf("invalid template_id %q", in.TemplateID)
	}
	salt, err := cryptox.AccountSaltFromBytes(in.AccountSalt)
	if err != nil {
		return nil, err
	}
	if salt.IsZero() {
		return nil, ErrEmptySalt
	}

	w := &Witness{
		TemplateID:     id,
		Domain:         in.Domain,
		Selector:       in.Selector,
		Algorithm:      in.Algorithm,
		Header:         in.Header,
		Body:           in.Body,
		BodyRange:      canon.Range(in.BodyRange),
		SubjectRange:   canon.Range(in.SubjectRange),
		PublicKey:      in.PublicKey,
		KeyFingerprint: in.KeyFingerprint,
		CommandHash:    in.CommandHash,
		CommandRange:   canon.Range(in.CommandRange),
		SkippedPrefix:  in.SkippedCommandPrefix,
		salt:           salt,
	}
	for _, f := range in.HeaderRanges {
		w.HeaderRanges = append(w.HeaderRanges, canon.SignedField{Name: f.Name, Range: canon.Range{Start: f.Start, End: f.End}})
	}
	for _, p := range in.CommandParams {
		w.Params = append(w.Params, p)
	}
	return w, nil
}
