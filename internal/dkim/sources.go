package dkim

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// KeySource fetches published keys. Implementations return ErrKeyNotFound
// when the key does not exist; any other error is treated as transient.
type KeySource interface {
	FetchKey(ctx context.Context, domain, selector string) (*KeyRecord, error)
}

// TXTResolver is the part of *net.Resolver used by DNSKeySource.
type TXTResolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// DNSKeySource reads keys from TXT records at selector._domainkey.domain.
type DNSKeySource struct {
	resolver TXTResolver
	ttl      time.Duration
	now      func() time.Time
}

// NewDNSKeySource uses net.DefaultResolver when r is nil. A positive ttl
// sets ExpiresAt on fetched records.
func NewDNSKeySource(r TXTResolver, ttl time.Duration) *DNSKeySource {
	if r == nil {
		r = net.DefaultResolver
	}
	return &DNSKeySource{resolver: r, ttl: ttl, now: time.Now}
}

func (s *DNSKeySource) FetchKey(ctx context.Context, domain, selector string) (*KeyRecord, error) {
	name := KeyName(domain, selector)

	txts, err := s.resolver.LookupTXT(ctx, name)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil, fmt.Errorf("%s: %w", name, ErrKeyNotFound)
		}
		return nil, fmt.Errorf("lookup %s: %w", name, err)
	}

	var lastErr error
	for _, txt := range txts {
		if !strings.Contains(txt, "p=") {
			continue
		}
		rec, err := ParseTXT(domain, selector, txt)
		if err != nil {
			lastErr = err
			continue
		}
		if s.ttl > 0 {
			rec.ExpiresAt = s.now().Add(s.ttl)
		}
		return rec, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%s: %w: %v", name, ErrKeyNotFound, lastErr)
	}
	return nil, fmt.Errorf("%s: %w", name, ErrKeyNotFound)
}

// StaticKeySource serves a fixed set of records.
type StaticKeySource struct {
	records map[string]*KeyRecord
}

func NewStaticKeySource(records ...*KeyRecord) *StaticKeySource {
	s := &StaticKeySource{records: make(map[string]*KeyRecord, len(records))}
	for _, r := range records {
		s.records[KeyName(r.Domain, r.Selector)] = r
	}
	return s
}

func (s *StaticKeySource) FetchKey(_ context.Context, domain, selector string) (*KeyRecord, error) {
	r, ok := s.records[KeyName(domain, selector)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", KeyName(domain, selector), ErrKeyNotFound)
	}
	return r.clone(), nil
}

// ChainKeySource asks each source in turn and returns the first key found.
// Errors other than ErrKeyNotFound stop the walk.
type ChainKeySource []KeySource

func (c ChainKeySource) FetchKey(ctx context.Context, domain, selector string) (*KeyRecord, error) {
	for _, src := range c {
		rec, err := src.FetchKey(ctx, domain, selector)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrKeyNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%s: %w", KeyName(domain, selector), ErrKeyNotFound)
}
