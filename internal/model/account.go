package model

import "time"

// Account is a single mailbox entry in the credential catalog.
type Account struct {
	// ID is the opaque catalog key for this account.
	ID string `json:"id" db:"id"`

	// Address is the mailbox login, unique within the catalog.
	Address string `json:"address" db:"address"`

	// Secret is the app password used to authenticate. It lives in the
	// credential vault, never in the database, and is never serialized.
	Secret string `json:"-" db:"-"`

	// Label is an optional free-form tag shown next to the address.
	Label string `json:"label,omitempty" db:"label"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
