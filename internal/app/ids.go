package app

import (
	"crypto/rand"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/dkeye/Lounge/internal/domain"
)

const maxSlugLen = 40

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newULID(at time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at.UTC()), entropy).String()
}

// Slugify folds name to lowercase ASCII words joined by '-'.
// "Café Gaming!" becomes "cafe-gaming".
func Slugify(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "room"
	}
	return slug
}

// roomIDCandidate yields "<slug>-<time suffix>" for the first half of the
// attempts. A slug that itself extends an existing id folds into it whatever
// the suffix, so later attempts keep only the slug's first word and append
// the random tail of a ULID instead.
func roomIDCandidate(slug string, at time.Time, attempt int) domain.RoomID {
	if attempt < maxRoomIDTries/2 {
		return domain.RoomID(slug + "-" + timeSuffix(at, attempt))
	}
	head, _, _ := strings.Cut(slug, "-")
	id := strings.ToLower(newULID(at))
	return domain.RoomID(head + "-" + id[len(id)-10:])
}

// timeSuffix is the tail of the base36 millisecond clock, shifted by attempt
// so retries within one millisecond differ.
func timeSuffix(at time.Time, attempt int) string {
	s := strconv.FormatInt(at.UnixMilli()+int64(attempt), 36)
	if len(s) > 6 {
		s = s[len(s)-6:]
	}
	return s
}
