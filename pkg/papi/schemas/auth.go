package schemas

type LoginRequest struct {
	Body struct {
		UserID   string `json:"user_id" minLength:"1" doc:"Student or staff number"`
		Password string `json:"password" minLength:"1" doc:"Account password"`
	}
}

// TokenPairResponse is returned by login/.
type TokenPairResponse struct {
	Body struct {
		Access  string `json:"access" doc:"Short-lived access token (JWT)"`
		Refresh string `json:"refresh" doc:"Refresh token"`
	}
}

// RefreshTokenRequest represents the payload for requesting a new access token.
type RefreshTokenRequest struct {
	Body struct {
		Refresh string `json:"refresh" minLength:"1" doc:"Refresh token issued from login or a previous refresh"`
	}
}

// RefreshTokenResponse contains a newly minted access token and, when the
// server rotates refresh tokens, the replacement refresh token.
type RefreshTokenResponse struct {
	Body struct {
		Access  string `json:"access" doc:"New short-lived access token"`
		Refresh string `json:"refresh,omitempty" doc:"Rotated refresh token, if rotation is enabled"`
	}
}

type LogoutRequest struct {
	Body struct {
		Refresh string `json:"refresh" doc:"Refresh token to revoke"`
	}
}

type ResetContentResponse struct {
	Status int
}
