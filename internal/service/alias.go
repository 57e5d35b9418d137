package service

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

// Base62 character set for alias generation
const base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// MaxAliasLength is the longest alias the links table accepts
const MaxAliasLength = 20

// aliasPattern admits the RFC 3986 unreserved characters, so an alias is a
// single path segment that needs no escaping.
var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9._~-]+$`)

// reservedAliases would be shadowed by fixed routes or collapsed by path
// cleaning.
var reservedAliases = map[string]struct{}{
	"api":     {},
	"health":  {},
	"metrics": {},
	".":       {},
	"..":      {},
}

// AliasGenerator produces alias candidates. Candidates are not guaranteed
// unique; the store's unique constraint decides.
type AliasGenerator interface {
	Generate() (string, error)
}

// RandomAliasGenerator draws each character uniformly from the base62 alphabet
type RandomAliasGenerator struct {
	Length int
}

// NewRandomAliasGenerator creates a generator for aliases of the given length
func NewRandomAliasGenerator(length int) *RandomAliasGenerator {
	return &RandomAliasGenerator{Length: length}
}

func (g *RandomAliasGenerator) Generate() (string, error) {
	max := big.NewInt(int64(len(base62Chars)))
	b := make([]byte, g.Length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = base62Chars[n.Int64()]
	}
	return string(b), nil
}

// ValidateAlias checks a caller-supplied alias
func ValidateAlias(alias string) error {
	if len(alias) == 0 || len(alias) > MaxAliasLength {
		return ErrInvalidAlias
	}
	if !aliasPattern.MatchString(alias) {
		return ErrInvalidAlias
	}
	if _, reserved := reservedAliases[alias]; reserved {
		return ErrInvalidAlias
	}
	return nil
}
