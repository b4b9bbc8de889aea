package identitysdk

// Session is an authenticated handle on the identity service. It carries
// the bearer token minted at login and the server-side session id.
type Session struct {
	client       *Client
	accessToken  string
	refreshToken string
	sessionID    string
}

func newSession(c *Client, login LoginResponse) *Session {
	return &Session{
		client:       c,
		accessToken:  login.AccessToken,
		refreshToken: login.RefreshToken,
		sessionID:    login.SessionID,
	}
}

// AccessToken returns the raw bearer token for this session.
func (s *Session) AccessToken() string { return s.accessToken }

// RefreshToken returns the opaque refresh token for this session.
func (s *Session) RefreshToken() string { return s.refreshToken }

// SessionID returns the server-side session id.
func (s *Session) SessionID() string { return s.sessionID }
