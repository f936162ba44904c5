package command

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"sync"
)

// Source is where the command text is read from.
type Source int

const (
	FromSubject Source = iota
	FromBody
)

func (s Source) String() string {
	if s == FromBody {
		return "body"
	}
	return "subject"
}

func (s Source) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *Source) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch strings.ToLower(v) {
	case "", "subject":
		*s = FromSubject
	case "body":
		*s = FromBody
	default:
		return fmt.Errorf("unknown command source %q", v)
	}
	return nil
}

// ParamType is the type named inside a {placeholder}.
type ParamType string

const (
	TypeUint     ParamType = "uint"
	TypeInt      ParamType = "int"
	TypeDecimals ParamType = "decimals"
	TypeAddress  ParamType = "ethAddr"
	TypeString   ParamType = "string"
	TypeBytes32  ParamType = "bytes32"
	TypeBytes    ParamType = "hex"
)

var typeAliases = map[string]ParamType{
	"uint":     TypeUint,
	"uint256":  TypeUint,
	"int":      TypeInt,
	"int256":   TypeInt,
	"decimals": TypeDecimals,
	"ethAddr":  TypeAddress,
	"address":  TypeAddress,
	"string":   TypeString,
	"bytes32":  TypeBytes32,
	"hex":      TypeBytes,
	"bytes":    TypeBytes,
}

// Token is a template element: a literal word or a typed placeholder.
type Token struct {
	Literal string
	Type    ParamType
}

func (t Token) IsPlaceholder() bool { return t.Type != "" }

func (t Token) String() string {
	if t.IsPlaceholder() {
		return "{" + string(t.Type) + "}"
	}
	return t.Literal
}

// Template is an immutable command grammar identified by ID.
type Template struct {
	ID     *big.Int
	Text   string
	Tokens []Token
	Source Source
}

// ParseTemplate splits text on whitespace; {type} words are placeholders.
func ParseTemplate(id *big.Int, text string, source Source) (*Template, error) {
	if id == nil || id.Sign() < 0 {
		return nil, fmt.Errorf("template id must be a non-negative integer")
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, fmt.Errorf("template %s: empty command", id)
	}

	tokens := make([]Token, 0, len(words))
	for _, w := range words {
		if strings.HasPrefix(w, "{") && strings.HasSuffix(w, "}") {
			t, ok := typeAliases[w[1:len(w)-1]]
			if !ok {
				return nil, fmt.Errorf("template %s: unknown placeholder %s", id, w)
			}
			tokens = append(tokens, Token{Type: t})
			continue
		}
		tokens = append(tokens, Token{Literal: w})
	}

	return &Template{ID: new(big.Int).Set(id), Text: strings.Join(words, " "), Tokens: tokens, Source: source}, nil
}

// Placeholders returns the number of placeholder tokens.
func (t *Template) Placeholders() int {
	n := 0
	for _, tok := range t.Tokens {
		if tok.IsPlaceholder() {
			n++
		}
	}
	return n
}

// Registry holds templates by id. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

func NewRegistry(templates ...*Template) *Registry {
	r := &Registry{templates: make(map[string]*Template, len(templates))}
	for _, t := range templates {
		r.templates[t.ID.String()] = t
	}
	return r
}

// Register adds t, replacing any template with the same id.
func (r *Registry) Register(t *Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.ID.String()] = t
}

func (r *Registry) Lookup(id *big.Int) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id.String()]
	if !ok {
		return nil, fmt.Errorf("template %s: %w", id, ErrUnknownTemplate)
	}
	return t, nil
}

type templateJSON struct {
	ID      string `json:"id"`
	Command string `json:"command"`
	Source  Source `json:"source"`
}

// LoadRegistry reads a JSON array of {"id","command","source"} objects.
// Ids are decimal or 0x-prefixed hex.
func LoadRegistry(r io.Reader) (*Registry, error) {
	var items []templateJSON
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}

	reg := NewRegistry()
	for _, it := range items {
		id, err := ParseID(it.ID)
		if err != nil {
			return nil, err
		}
		t, err := ParseTemplate(id, it.Command, it.Source)
		if err != nil {
			return nil, err
		}
		if _, err := reg.Lookup(id); err == nil {
			return nil, fmt.Errorf("template %s defined twice", id)
		}
		reg.Register(t)
	}
	return reg, nil
}

func LoadRegistryFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadRegistry(f)
}

// DefaultRegistry holds the signHash template with id 1.
func DefaultRegistry() *Registry {
	t, err := ParseTemplate(big.NewInt(1), "signHash {uint}", FromSubject)
	if err != nil {
		panic(err)
	}
	return NewRegistry(t)
}

// ParseID parses a template id in decimal or 0x hex.
func ParseID(s string) (*big.Int, error) {
	v, ok := parseUint(s)
	if !ok {
		return nil, fmt.Errorf("invalid template id %q", s)
	}
	return v, nil
}
