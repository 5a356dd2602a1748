// Package syntax has the timestamp identifiers (TIDs) used as repository revisions and record keys.
package syntax

import (
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"
)

const Base32SortAlphabet = "234567abcdefghijklmnopqrstuvwxyz"

// A 13-character, lexically sortable timestamp identifier: 53 bits of microseconds since the UNIX epoch, then a 10-bit clock ID.
//
// Always use [ParseTID] instead of wrapping untrusted strings directly.
type TID string

var tidRegex = regexp.MustCompile(`^[234567abcdefghij][234567abcdefghijklmnopqrstuvwxyz]{12}$`)

var ErrInvalidTID = errors.New("invalid TID")

func ParseTID(raw string) (TID, error) {
	if len(raw) != 13 {
		return "", errors.Join(ErrInvalidTID, errors.New("TID is wrong length (expected 13 chars)"))
	}
	if !tidRegex.MatchString(raw) {
		return "", errors.Join(ErrInvalidTID, errors.New("TID syntax didn't validate via regex"))
	}
	return TID(raw), nil
}

func NewTIDFromInteger(v uint64) TID {
	v &= 0x7FFF_FFFF_FFFF_FFFF
	var buf [13]byte
	for i := 12; i >= 0; i-- {
		buf[i] = Base32SortAlphabet[v&0x1F]
		v >>= 5
	}
	return TID(buf[:])
}

// Constructs a TID from a UNIX timestamp (in microseconds) and clock ID.
func NewTID(unixMicros int64, clockID uint) TID {
	v := (uint64(unixMicros&0x1F_FFFF_FFFF_FFFF) << 10) | uint64(clockID&0x3FF)
	return NewTIDFromInteger(v)
}

func NewTIDFromTime(ts time.Time, clockID uint) TID {
	return NewTID(ts.UTC().UnixMicro(), clockID)
}

// Returns zero for malformed TIDs.
func (t TID) Integer() uint64 {
	if len(t) != 13 {
		return 0
	}
	var v uint64
	for i := 0; i < 13; i++ {
		c := strings.IndexByte(Base32SortAlphabet, t[i])
		if c < 0 {
			return 0
		}
		v = (v << 5) | uint64(c)
	}
	return v
}

func (t TID) Time() time.Time {
	return time.UnixMicro(int64((t.Integer() >> 10) & 0x1F_FFFF_FFFF_FFFF)).UTC()
}

func (t TID) ClockID() uint {
	return uint(t.Integer() & 0x3FF)
}

func (t TID) String() string {
	return string(t)
}

func (t TID) MarshalText() ([]byte, error) {
	return []byte(t), nil
}

func (t *TID) UnmarshalText(text []byte) error {
	tid, err := ParseTID(string(text))
	if err != nil {
		return err
	}
	*t = tid
	return nil
}

// TIDClock hands out strictly increasing TIDs, even if the wall clock stalls or goes backwards. Safe for concurrent use.
type TIDClock struct {
	ClockID uint
	// time source; defaults to time.Now
	Now func() time.Time

	mtx           sync.Mutex
	lastUnixMicro int64
}

func NewTIDClock(clockID uint) *TIDClock {
	return &TIDClock{ClockID: clockID}
}

// Resumes a clock from a previously issued TID, so that later values sort after it.
func ClockFromTID(t TID) *TIDClock {
	return &TIDClock{
		ClockID:       t.ClockID(),
		lastUnixMicro: t.Time().UnixMicro(),
	}
}

func (c *TIDClock) Next() TID {
	var now time.Time
	if c.Now != nil {
		now = c.Now()
	} else {
		now = time.Now()
	}
	um := now.UTC().UnixMicro()

	c.mtx.Lock()
	if um <= c.lastUnixMicro {
		um = c.lastUnixMicro + 1
	}
	c.lastUnixMicro = um
	c.mtx.Unlock()
	return NewTID(um, c.ClockID)
}
