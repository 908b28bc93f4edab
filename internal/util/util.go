package util

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

func NormalizePhone(p string) string {
	p = strings.TrimPrefix(strings.TrimSpace(p), "whatsapp:")
	p = strings.ReplaceAll(p, " ", "")
	if p != "" && !strings.HasPrefix(p, "+") {
		p = "+" + p
	}
	return p
}

// NewTaskID returns a sortable id for internally generated records.
func NewTaskID() string {
	t := time.Now().UTC()
	return "tsk_" + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

func NowUTC() time.Time {
	return time.Now().UTC()
}

// SameUTCDay reports whether both instants fall on the same UTC calendar day.
func SameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
