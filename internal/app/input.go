package app

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/dmitrijs2005/emailproof/internal/command"
	"github.com/dmitrijs2005/emailproof/internal/cryptox"
	"github.com/dmitrijs2005/emailproof/internal/flagx"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// isTerminal is a test seam for term.IsTerminal.
var isTerminal = term.IsTerminal

var fixtureFlags = []string{"-H", "-D", "-L", "-I", "-S"}

// FixtureFlags are the driver inputs that are not part of Config.
type FixtureFlags struct {
	Hash       string
	Domain     string
	Selector   string
	TemplateID *big.Int
	// Salt is the raw -S value; empty means prompt for it.
	Salt string
}

// ParseFixtureFlags reads the driver flags from args, ignoring all others.
//
//	-H string   hash to sign (default the zero-padded test hash)
//	-D string   sender domain (default example.com)
//	-L string   DKIM selector (default selector)
//	-I string   template id, decimal or 0x hex (default 1)
//	-S string   account salt, 0x + 64 hex digits (default: prompt)
func ParseFixtureFlags(args []string) (FixtureFlags, error) {
	fs := flag.NewFlagSet("fixture", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var f FixtureFlags
	fs.StringVar(&f.Hash, "H", DefaultHash, "hash to sign")
	fs.StringVar(&f.Domain, "D", "example.com", "sender domain")
	fs.StringVar(&f.Selector, "L", "selector", "dkim selector")
	id := fs.String("I", "1", "template id")
	fs.StringVar(&f.Salt, "S", "", "account salt")

	if err := fs.Parse(flagx.FilterArgs(args, fixtureFlags)); err != nil {
		return FixtureFlags{}, err
	}

	tid, err := command.ParseID(*id)
	if err != nil {
		return FixtureFlags{}, err
	}
	f.TemplateID = tid
	return f, nil
}

// ReadSalt parses value, or prompts on w and reads the salt from the
// terminal without echo when value is empty.
func ReadSalt(value string, w io.Writer) (cryptox.AccountSalt, error) {
	if value != "" {
		return cryptox.ParseAccountSalt(value)
	}

	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		// Piped input: read one line.
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return cryptox.AccountSalt{}, fmt.Errorf("read salt: %w", err)
		}
		return cryptox.ParseAccountSalt(strings.TrimSpace(line))
	}

	if _, err := fmt.Fprint(w, "Enter account salt: "); err != nil {
		return cryptox.AccountSalt{}, err
	}
	b, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return cryptox.AccountSalt{}, err
	}
	defer cryptox.Wipe(b)

	return cryptox.ParseAccountSalt(strings.TrimSpace(string(b)))
}
