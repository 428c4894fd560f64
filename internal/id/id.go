package id

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"
)

// Crockford's Base32 (no I, L, O, U).
const ulidEncoding = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// ULIDLength is the length of an encoded ULID.
const ULIDLength = 26

var ulidDecoding = func() [256]int8 {
	var t [256]int8
	for i := range t {
		t[i] = -1
	}
	for i := 0; i < len(ulidEncoding); i++ {
		t[ulidEncoding[i]] = int8(i)
	}
	return t
}()

// Generator produces monotonic ULIDs: within one millisecond the 80-bit
// random part is incremented instead of redrawn, so IDs generated by the same
// Generator always sort in generation order.
type Generator struct {
	mu      sync.Mutex
	now     func() time.Time
	lastMs  int64
	entropy [10]byte
}

// NewGenerator returns a Generator reading time from now (time.Now when nil).
func NewGenerator(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

// Next returns a new ULID.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms <= g.lastMs {
		if increment(&g.entropy) {
			return encode(g.lastMs, g.entropy)
		}
		// entropy exhausted within one millisecond
		ms = g.lastMs + 1
	}
	g.lastMs = ms
	_, _ = rand.Read(g.entropy[:])
	return encode(ms, g.entropy)
}

// increment adds one to the big-endian entropy, reporting false on overflow.
func increment(b *[10]byte) bool {
	for i := len(b) - 1; i >= 0; i-- {
		b[i]++
		if b[i] != 0 {
			return true
		}
	}
	return false
}

// encode packs 48 bits of time and 80 bits of entropy into 26 base32
// characters, most significant bits first.
func encode(ms int64, entropy [10]byte) string {
	var raw [16]byte
	for i := 0; i < 6; i++ {
		raw[i] = byte(ms >> (8 * (5 - i)))
	}
	copy(raw[6:], entropy[:])

	out := make([]byte, ULIDLength)
	// 130 bits of output for 128 bits of input: the first character only
	// carries the top 3 bits.
	var acc uint32
	bits := 2
	pos := 0
	for _, b := range raw {
		acc = acc<<8 | uint32(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			out[pos] = ulidEncoding[(acc>>uint(bits))&0x1F]
			pos++
		}
	}
	return string(out)
}

var defaultGenerator = NewGenerator(nil)

// ULID returns a new monotonic ULID from the process-wide generator.
func ULID() string {
	return defaultGenerator.Next()
}

// IsValidULID checks if a string is a valid ULID.
func IsValidULID(s string) bool {
	if len(s) != ULIDLength || s[0] > '7' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if ulidDecoding[s[i]] < 0 {
			return false
		}
	}
	return true
}

// ULIDTime extracts the timestamp from a ULID.
func ULIDTime(ulid string) (time.Time, error) {
	if !IsValidULID(ulid) {
		return time.Time{}, fmt.Errorf("invalid ULID: %s", ulid)
	}
	var ms int64
	for i := 0; i < 10; i++ {
		ms = ms<<5 | int64(ulidDecoding[ulid[i]])
	}
	return time.UnixMilli(ms), nil
}
