package app

import (
	"crypto"
	"fmt"
	"time"

	"github.com/dmitrijs2005/emailproof/internal/canon"
	"github.com/dmitrijs2005/emailproof/internal/dkim"
)

// DefaultHash is the value signed by the reference fixture.
const DefaultHash = "0x0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// sampleDate pins the Date header so equal inputs give equal emails.
var sampleDate = time.Date(2024, time.March, 21, 12, 0, 0, 0, time.UTC)

// SampleEmail renders the signHash email the fixture is built from.
func SampleEmail(hash, domain string) []byte {
	return []byte(fmt.Sprintf(
		"From: test@%s\r\n"+
			"To: relayer@example.com\r\n"+
			"Subject: signHash %s\r\n"+
			"Message-ID: <test123@%s>\r\n"+
			"Date: %s\r\n"+
			"\r\n"+
			"This is a test email to sign hash %s.\r\n",
		domain, hash, domain, sampleDate.Format(time.RFC1123Z), hash))
}

// signSample DKIM-signs the sample email with key.
func signSample(hash, domain, selector string, key crypto.Signer) (canon.RawEmail, error) {
	return dkim.Sign(SampleEmail(hash, domain), dkim.SignOptions{
		Domain:    domain,
		Selector:  selector,
		Headers:   []string{"from", "to", "subject", "message-id", "date"},
		Key:       key,
		Timestamp: sampleDate,
	})
}
