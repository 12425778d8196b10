package storage

import "time"

// State is the client session persisted between runs.
type State struct {
	Token     string    `json:"token"`     // bearer token of the session
	SessionID string    `json:"sessionId"` // id of the session, for sign-out
	AccountID string    `json:"accountId"`
	UserID    string    `json:"userId"` // profile of the signed-in account
	URL       string    `json:"url"`    // gateway the token was issued by
	SavedAt   time.Time `json:"savedAt"`
}

// SignedIn reports whether the state carries a session.
func (s State) SignedIn() bool {
	return s.Token != ""
}
