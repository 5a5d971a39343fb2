package vault

import (
	"fmt"
	"time"
)

// AuthScheme names how the grid authenticates an account.
type AuthScheme string

const (
	AuthStandard AuthScheme = "STANDARD"
	AuthPAM      AuthScheme = "PAM"
)

// GridAccount is a stored remote identity. Password holds ciphertext only.
type GridAccount struct {
	ID              int64
	Host            string
	Port            int
	Zone            string
	UserName        string
	Password        string
	DefaultResource string
	HomePath        string
	AuthScheme      AuthScheme
	Comment         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Key returns the identity tuple that makes an account unique.
func (a GridAccount) Key() string {
	return fmt.Sprintf("%s@%s:%d/%s", a.UserName, a.Host, a.Port, a.Zone)
}

// AccountSpec is the clear-text input for AddOrUpdateGridAccount.
type AccountSpec struct {
	Host            string     `json:"host" validate:"notblank"`
	Port            int        `json:"port" validate:"gte=1,lte=65535"`
	Zone            string     `json:"zone" validate:"notblank"`
	UserName        string     `json:"user_name" validate:"notblank"`
	Password        string     `json:"password" validate:"required"`
	DefaultResource string     `json:"default_resource"`
	HomePath        string     `json:"home_path"`
	AuthScheme      AuthScheme `json:"auth_scheme" validate:"omitempty,oneof=STANDARD PAM"`
	Comment         string     `json:"comment"`
}

// Credential is a decrypted account ready to hand to the remote client.
type Credential struct {
	AccountID       int64
	Host            string
	Port            int
	Zone            string
	UserName        string
	Password        string
	DefaultResource string
	HomePath        string
	AuthScheme      AuthScheme
}

// keyStoreEntry is the single persisted pass-phrase record.
type keyStoreEntry struct {
	PhraseHash string
	KDFSalt    []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
