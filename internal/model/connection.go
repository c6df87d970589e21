package model

import (
	"fmt"
	"strings"
	"time"
)

// Connection is a stored authorization for one user in one region.
// The refresh token is only ever held sealed.
type Connection struct {
	CreatedAt          time.Time
	UpdatedAt          time.Time
	UserEmail          string
	Region             Region
	DataCenter         string
	AccountsHost       string
	APIHost            string
	RefreshTokenSealed string
}

// Validate ensures the connection can be stored.
func (c *Connection) Validate() error {
	if strings.TrimSpace(c.UserEmail) == "" {
		return fmt.Errorf("user email is required")
	}
	if _, err := ParseRegion(string(c.Region)); err != nil {
		return err
	}
	if c.APIHost == "" || c.AccountsHost == "" {
		return fmt.Errorf("api and accounts hosts are required")
	}
	if c.RefreshTokenSealed == "" {
		return fmt.Errorf("sealed refresh token is required")
	}
	return nil
}
