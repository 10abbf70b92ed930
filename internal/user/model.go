package user

// JoinRequest with an empty SessionID creates a new room.
type JoinRequest struct {
	Username  string `json:"username" validate:"required,min=1,max=32"`
	SessionID string `json:"session_id" validate:"omitempty,max=64"`
}

type JoinResponse struct {
	AccessToken string `json:"access_token"`
	Username    string `json:"username"`
	SessionID   string `json:"session_id"`
}
