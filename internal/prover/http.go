package prover

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/emailproof/internal/auth"
)

const (
	tokenValidity   = 5 * time.Minute
	maxResponseSize = 16 << 20
)

// HTTPBackend posts the witness as JSON to <url>/prove.
type HTTPBackend struct {
	url     string
	client  *http.Client
	tokenID string
	secret  []byte
}

// NewHTTPBackend builds a backend for baseURL. When secret is non-empty each
// request carries an HS256 bearer token whose token id is tokenID.
func NewHTTPBackend(baseURL, tokenID, secret string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPBackend{
		url:     strings.TrimRight(baseURL, "/") + "/prove",
		client:  client,
		tokenID: tokenID,
		secret:  []byte(secret),
	}
}

func (*HTTPBackend) Name() string { return "http" }

type wireError struct {
	Error string `json:"error"`
}

func (b *HTTPBackend) Prove(ctx context.Context, w *Witness) (*Proof, error) {
	body, err := w.wireJSON()
	if err != nil {
		return nil, rejected(b.Name(), "encode witness", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, rejected(b.Name(), "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if len(b.secret) > 0 {
		token, err := auth.GenerateToken(b.tokenID, b.secret, tokenValidity)
		if err != nil {
			return nil, rejected(b.Name(), "sign token", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, unavailable(b.Name(), "transport", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, unavailable(b.Name(), "read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := fmt.Sprintf("status %d", resp.StatusCode)
		var we wireError
		if json.Unmarshal(data, &we) == nil && we.Error != "" {
			reason += ": " + we.Error
		}

		switch {
		case resp.StatusCode == http.StatusRequestTimeout,
			resp.StatusCode == http.StatusTooManyRequests,
			resp.StatusCode >= 500:
			return nil, unavailable(b.Name(), reason, nil)
		default:
			return nil, rejected(b.Name(), reason, nil)
		}
	}

	var wp wireProof
	if err := json.Unmarshal(data, &wp); err != nil {
		return nil, unavailable(b.Name(), "decode response", err)
	}
	return wp.proof(), nil
}

// NewHTTPHandler serves a Backend with the HTTPBackend wire protocol. When
// secret is non-empty a valid bearer token is required.
func NewHTTPHandler(backend Backend, secret string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /prove", func(rw http.ResponseWriter, r *http.Request) {
		writeErr := func(code int, msg string) {
			rw.Header().Set("Content-Type", "application/json")
			rw.WriteHeader(code)
			_ = json.NewEncoder(rw).Encode(wireError{Error: msg})
		}

		if secret != "" {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				writeErr(http.StatusUnauthorized, "missing token")
				return
			}
			if _, err := auth.ParseToken(token, []byte(secret)); err != nil {
				writeErr(http.StatusUnauthorized, err.Error())
				return
			}
		}

		var in wireWitness
		if err := json.NewDecoder(io.LimitReader(r.Body, maxResponseSize)).Decode(&in); err != nil {
			writeErr(http.StatusBadRequest, "decode witness: "+err.Error())
			return
		}
		w, err := witnessFromWire(&in)
		if err != nil {
			writeErr(http.StatusUnprocessableEntity, err.Error())
			return
		}

		p, err := backend.Prove(r.Context(), w)
		if err != nil {
			var pe *Error
			if errors.As(err, &pe) && pe.Kind == WitnessRejected {
				writeErr(http.StatusUnprocessableEntity, err.Error())
				return
			}
			writeErr(http.StatusServiceUnavailable, err.Error())
			return
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(toWireProof(p))
	})
	return mux
}
