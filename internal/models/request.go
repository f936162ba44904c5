// Package models holds the persistent domain types of the proof pipeline.
package models

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// EmailTxAuth carries the on-chain context a request is authorizing.
// The account salt is deliberately absent; it is supplied per invocation.
type EmailTxAuth struct {
	TemplateID          *big.Int
	Chain               string
	DKIMContractAddress string
}

// Failure describes why a request ended in StatusFailed.
type Failure struct {
	Kind      string
	Detail    string
	Retryable bool
}

type Request struct {
	ID          uuid.UUID
	Subject     string
	EmailTxAuth EmailTxAuth
	Status      Status
	Failure     *Failure
	// Result is the encoded authorization message once Proved.
	Result    []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRequest returns a Received request with a fresh id.
func NewRequest(subject string, auth EmailTxAuth) *Request {
	now := time.Now().UTC()
	return &Request{
		ID:          uuid.New(),
		Subject:     subject,
		EmailTxAuth: auth,
		Status:      StatusReceived,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep copy so stores can hand out snapshots.
func (r *Request) Clone() *Request {
	c := *r
	if r.EmailTxAuth.TemplateID != nil {
		c.EmailTxAuth.TemplateID = new(big.Int).Set(r.EmailTxAuth.TemplateID)
	}
	if r.Failure != nil {
		f := *r.Failure
		c.Failure = &f
	}
	if r.Result != nil {
		c.Result = append([]byte(nil), r.Result...)
	}
	return &c
}
