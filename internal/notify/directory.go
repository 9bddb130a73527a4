package notify

import (
	"context"
	"fmt"
	"net/mail"
)

// Directory resolves user IDs to email addresses. Lookups consult a static
// map first (populated from configuration); a user ID that is itself a valid
// address resolves to itself, which covers deployments that use email
// addresses as user IDs.
type Directory struct {
	addresses map[string]string
}

// NewDirectory creates a directory over a userID -> address map. The map may
// be nil.
func NewDirectory(addresses map[string]string) *Directory {
	return &Directory{addresses: addresses}
}

// Lookup returns the email address for a user ID, or an error when no
// address is known.
func (d *Directory) Lookup(ctx context.Context, userID string) (string, error) {
	if address, ok := d.addresses[userID]; ok {
		return address, nil
	}
	if _, err := mail.ParseAddress(userID); err == nil {
		return userID, nil
	}
	return "", fmt.Errorf("no email address on record for user %s", userID)
}
