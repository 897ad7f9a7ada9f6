package domain

// SessionIdentity binds a request to one login session. It is minted at
// login and reconstructed from the session cookie on every request; it is
// never persisted on its own.
type SessionIdentity struct {
	Username string
	// SessionTime is the session creation instant in Unix milliseconds.
	// Strictly increasing per process, so two logins never share it.
	SessionTime int64
	// Domain is the practice domain chosen for this session. Optional,
	// not part of any storage key.
	Domain string
}

// Answer is one saved answer for a question within a session. The tuple
// (Username, Question, SessionTime) is its natural key: saving again under
// the same tuple replaces Answer in place.
type Answer struct {
	ID          int64
	Username    string
	Question    int
	Answer      string
	SessionTime int64
}
