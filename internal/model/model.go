// Package model defines domain entities used by services and repositories.
package model

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/and161185/userdir/internal/expr"
)

// Role is the authorization level of a directory record.
type Role string

const (
	// RoleUser is the default role for ordinary records.
	RoleUser Role = "user"
	// RoleAdmin marks administrators.
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role. The empty role is valid and means
// "not set".
func (r Role) Valid() bool {
	switch r {
	case "", RoleUser, RoleAdmin:
		return true
	}
	return false
}

// Store attribute names.
const (
	AttrUUID       = "uuid"
	AttrExternalID = "id"
	AttrUsername   = "username"
	AttrRole       = "role"
	AttrAPIKey     = "apiKey"
	AttrCreatedAt  = "createdAt"
	AttrUpdatedAt  = "updatedAt"
)

// User is a directory record.
type User struct {
	UUID       string // PK, generated once
	ExternalID string // chat user id; unique by convention only
	Username   string
	Role       Role
	APIKey     string // empty until issued
	CreatedAt  int64  // ms since epoch
	UpdatedAt  int64  // ms since epoch
}

// Attrs returns every attribute in a fixed order, empty values included.
func (u User) Attrs() expr.Attrs {
	return expr.Attrs{
		{Name: AttrUUID, Value: u.UUID},
		{Name: AttrExternalID, Value: u.ExternalID},
		{Name: AttrUsername, Value: u.Username},
		{Name: AttrRole, Value: string(u.Role)},
		{Name: AttrAPIKey, Value: u.APIKey},
		{Name: AttrCreatedAt, Value: u.CreatedAt},
		{Name: AttrUpdatedAt, Value: u.UpdatedAt},
	}
}

// Item returns the record as a store item. Optional empty attributes are
// left out; username is always present.
func (u User) Item() map[string]any {
	item := map[string]any{
		AttrUUID:      u.UUID,
		AttrUsername:  u.Username,
		AttrCreatedAt: u.CreatedAt,
		AttrUpdatedAt: u.UpdatedAt,
	}
	if u.ExternalID != "" {
		item[AttrExternalID] = u.ExternalID
	}
	if u.Role != "" {
		item[AttrRole] = string(u.Role)
	}
	if u.APIKey != "" {
		item[AttrAPIKey] = u.APIKey
	}
	return item
}

// UserFromItem builds a User from a store item. Missing attributes stay zero.
func UserFromItem(item map[string]any) User {
	return User{
		UUID:       str(item[AttrUUID]),
		ExternalID: str(item[AttrExternalID]),
		Username:   str(item[AttrUsername]),
		Role:       Role(str(item[AttrRole])),
		APIKey:     str(item[AttrAPIKey]),
		CreatedAt:  millis(item[AttrCreatedAt]),
		UpdatedAt:  millis(item[AttrUpdatedAt]),
	}
}

// HasAPIKey reports whether a credential was issued.
func (u User) HasAPIKey() bool { return u.APIKey != "" }

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		// external ids may come back numeric from some stores
		return fmt.Sprint(t)
	}
}

func millis(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float64:
		return int64(t)
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			f, _ := t.Float64()
			return int64(f)
		}
		return n
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	return 0
}

// CompileUpdate compiles every mutable attribute into an update expression.
// The key and createdAt are never written. Empty attributes become removals.
func CompileUpdate(u User) expr.Update {
	return expr.Compile(u.Attrs().Without(AttrUUID).Without(AttrCreatedAt))
}
