// Package ticketcode mints human-readable, globally unique ticket codes.
//
// Uniqueness is not guaranteed by the candidate generator alone: two
// concurrent requests can race on the same candidate. The authoritative
// guarantee is the unique index on the ticket store, and the generator
// treats an insert rejected by that index as the signal to try again.
package ticketcode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"ms-checkout/internal/errs"
)

// ErrDuplicate is returned by an InsertFunc when the store rejected the
// candidate code on its uniqueness constraint.
var ErrDuplicate = errors.New("ticket code already exists")

// codeAlphabet drops look-alike characters (0/O, 1/I/L) so codes survive
// being read aloud or typed from a printed ticket.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// maxAttempts bounds consecutive collisions. Per-candidate collision odds
// are astronomically low, so hitting this repeatedly means the generator or
// the store is broken, not bad luck.
const maxAttempts = 5

// InsertFunc persists a ticket under the candidate code. It must return
// ErrDuplicate when the store's unique index rejects the code.
type InsertFunc func(ctx context.Context, code string) error

type Generator struct {
	Prefix string
}

func NewGenerator() *Generator {
	return &Generator{Prefix: "TKT"}
}

// Candidate builds one code: prefix, an encoded timestamp component, and a
// random component carrying over 40 bits of entropy.
func (g *Generator) Candidate() string {
	return fmt.Sprintf("%s-%s-%s", g.Prefix, encodeTimestamp(time.Now().Unix()), randomPart(9))
}

// Mint generates candidates and hands them to insert until one is accepted.
// After maxAttempts consecutive duplicates it gives up with an internal
// error; any other insert failure is passed through untouched.
func (g *Generator) Mint(ctx context.Context, insert InsertFunc) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		code := g.Candidate()
		err := insert(ctx, code)
		if err == nil {
			return code, nil
		}
		if errors.Is(err, ErrDuplicate) {
			continue
		}
		return "", err
	}
	return "", errs.E(errs.Internal, fmt.Sprintf("ticket code generation exhausted after %d collisions", maxAttempts))
}

func encodeTimestamp(unix int64) string {
	var b strings.Builder
	n := int64(len(codeAlphabet))
	for unix > 0 {
		b.WriteByte(codeAlphabet[unix%n])
		unix /= n
	}
	// reverse so the most significant character comes first
	s := []byte(b.String())
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
	return string(s)
}

func randomPart(length int) string {
	n := big.NewInt(int64(len(codeAlphabet)))
	out := make([]byte, length)
	for i := range out {
		idx, err := rand.Int(rand.Reader, n)
		if err != nil {
			// crypto/rand failing is unrecoverable for code generation
			panic(fmt.Sprintf("ticketcode: crypto/rand unavailable: %v", err))
		}
		out[i] = codeAlphabet[idx.Int64()]
	}
	return string(out)
}
