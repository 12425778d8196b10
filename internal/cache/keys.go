package cache

import "strings"

// Query operations cached by the client.
const (
	OpCurrentUser  = "current-user"
	OpRecentPosts  = "recent-posts"
	OpPosts        = "posts"
	OpPostByID     = "post-by-id"
	OpUserPosts    = "user-posts"
	OpRelatedPosts = "related-posts"
	OpSearchPosts  = "search-posts"
	OpSavedPosts   = "saved-posts"
	OpSaveRecords  = "save-records"
	OpLikedPosts   = "liked-posts"
	OpUsers        = "users"
	OpUserByID     = "user-by-id"
)

// Key identifies a cached query. Keys with the same op and params address
// the same entry.
type Key struct {
	Op     string
	Params []string
}

// NewKey builds a key.
func NewKey(op string, params ...string) Key {
	return Key{Op: op, Params: params}
}

func (k Key) String() string {
	if len(k.Params) == 0 {
		return k.Op
	}
	return k.Op + "\x1f" + strings.Join(k.Params, "\x1f")
}

// HasPrefix reports whether prefix names k or a family k belongs to:
// same op and prefix.Params is a leading run of k.Params.
func (k Key) HasPrefix(prefix Key) bool {
	if k.Op != prefix.Op || len(prefix.Params) > len(k.Params) {
		return false
	}
	for i, p := range prefix.Params {
		if k.Params[i] != p {
			return false
		}
	}
	return true
}

// Enabled reports whether every parameter is set. Queries on a disabled key
// are not run.
func (k Key) Enabled() bool {
	for _, p := range k.Params {
		if p == "" {
			return false
		}
	}
	return true
}
