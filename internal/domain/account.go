package domain

import "time"

// Account representa una cuenta EGOBAR. El hash de password y los secretos
// pendientes nunca salen por JSON; el wire usa Summary.
type Account struct {
	ID           string
	Username     string
	Email        string
	Mobile       string
	PasswordHash string
	Birthday     time.Time
	Verified     bool
	Verification *Secret
	OTP          *Secret
	Avatar       string
	CreatedAt    time.Time
}

// Summary es la vista publica de una cuenta.
type Summary struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Mobile    string    `json:"mobile,omitempty"`
	Verified  bool      `json:"verified"`
	Avatar    string    `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (a Account) Summary() Summary {
	return Summary{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		Mobile:    a.Mobile,
		Verified:  a.Verified,
		Avatar:    a.Avatar,
		CreatedAt: a.CreatedAt,
	}
}

// HasEmail indica si la cuenta tiene canal de correo para envios out-of-band.
func (a Account) HasEmail() bool {
	return a.Email != ""
}
