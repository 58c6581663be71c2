package model

// TokenManager issues and validates session tokens carrying a principal id.
type TokenManager interface {
	GenerateSessionToken(id UserID) (string, error)
	ParseSessionToken(token string) (UserID, error)
}
