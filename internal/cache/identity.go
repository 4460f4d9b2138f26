package cache

import (
	"slices"
	"strings"

	"github.com/claridad-app/claridad/internal/chat"
)

// TypingIDs extracts the user ids of a typing snapshot.
func TypingIDs(list []chat.TypingUser) []string {
	ids := make([]string, len(list))
	for i, u := range list {
		ids[i] = u.UserID
	}
	return ids
}

// OnlineIDs extracts the user ids of a presence snapshot.
func OnlineIDs(list []chat.OnlineUser) []string {
	ids := make([]string, len(list))
	for i, u := range list {
		ids[i] = u.UserID
	}
	return ids
}

// SetHash is an order-independent identity of a set of user ids.
func SetHash(ids []string) string {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	return strings.Join(sorted, "\x1f")
}

func sameUsers(a, b []string) bool {
	return SetHash(a) == SetHash(b)
}
