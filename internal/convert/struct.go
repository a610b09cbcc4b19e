// Package convert maps directory records to and from protobuf Struct messages.
package convert

import (
	"fmt"
	"math"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/userdir/internal/errs"
	"github.com/and161185/userdir/internal/model"
)

// ToStruct renders u. With redact set the API key is replaced by a presence flag.
func ToStruct(u model.User, redact bool) (*structpb.Struct, error) {
	m := map[string]any{
		model.AttrUUID:      u.UUID,
		model.AttrUsername:  u.Username,
		model.AttrCreatedAt: u.CreatedAt,
		model.AttrUpdatedAt: u.UpdatedAt,
	}
	if u.ExternalID != "" {
		m[model.AttrExternalID] = u.ExternalID
	}
	if u.Role != "" {
		m[model.AttrRole] = string(u.Role)
	}
	if redact {
		m["hasApiKey"] = u.HasAPIKey()
	} else if u.APIKey != "" {
		m[model.AttrAPIKey] = u.APIKey
	}
	return structpb.NewStruct(m)
}

// FromStruct reads the caller-settable fields of a record. Timestamps are
// server-owned and ignored. Malformed fields wrap errs.ErrInvalidArgument.
func FromStruct(s *structpb.Struct) (model.User, error) {
	if s == nil {
		return model.User{}, fmt.Errorf("nil record: %w", errs.ErrInvalidArgument)
	}
	var (
		u   model.User
		err error
		f   = s.GetFields()
	)
	if u.UUID, err = stringField(f, model.AttrUUID); err != nil {
		return model.User{}, err
	}
	if u.ExternalID, err = idField(f, model.AttrExternalID); err != nil {
		return model.User{}, err
	}
	if u.Username, err = stringField(f, model.AttrUsername); err != nil {
		return model.User{}, err
	}
	role, err := stringField(f, model.AttrRole)
	if err != nil {
		return model.User{}, err
	}
	u.Role = model.Role(role)
	if !u.Role.Valid() {
		return model.User{}, fmt.Errorf("role %q: %w", role, errs.ErrInvalidArgument)
	}
	if u.APIKey, err = stringField(f, model.AttrAPIKey); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// KeyRequest builds a request carrying only the internal key.
func KeyRequest(key string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		model.AttrUUID: structpb.NewStringValue(key),
	}}
}

// ExternalIDRequest builds a lookup request.
func ExternalIDRequest(id string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		model.AttrExternalID: structpb.NewStringValue(id),
	}}
}

func stringField(f map[string]*structpb.Value, name string) (string, error) {
	v, ok := f[name]
	if !ok {
		return "", nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return "", nil
	case *structpb.Value_StringValue:
		return k.StringValue, nil
	}
	return "", fmt.Errorf("field %s: want string: %w", name, errs.ErrInvalidArgument)
}

// idField also accepts integral numbers, since chat user ids are numeric.
func idField(f map[string]*structpb.Value, name string) (string, error) {
	if v, ok := f[name]; ok {
		if n, isNum := v.GetKind().(*structpb.Value_NumberValue); isNum {
			x := n.NumberValue
			if x != math.Trunc(x) || math.IsInf(x, 0) {
				return "", fmt.Errorf("field %s: not an integer: %w", name, errs.ErrInvalidArgument)
			}
			return strconv.FormatFloat(x, 'f', -1, 64), nil
		}
	}
	return stringField(f, name)
}
