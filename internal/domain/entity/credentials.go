package entity

// Credentials are supplied per attempt and never written anywhere by the engine.
type Credentials struct {
	Username         string
	Password         string
	Email            string
	TwoFactorChannel string
}

func (c Credentials) String() string {
	return "Credentials{Username:" + c.Username + ", Password:<redacted>}"
}

func (c Credentials) Valid() bool {
	return c.Username != "" && c.Password != ""
}
