package data

import (
	"encoding/json"
	"errors"
	"strconv"
)

// ErrInvalidPermissionFlag is returned when a permission flag name or number is unknown.
var ErrInvalidPermissionFlag = errors.New("invalid permission flag")

// PermissionFlag is the capability level attached to a user account. Levels are totally
// ordered: a user holding a level holds every level below it.
type PermissionFlag int16

// Known permission levels, lowest first. The zero value is not a valid flag.
const (
	PermissionFree PermissionFlag = iota + 1
	PermissionPaid
	PermissionEditor
	PermissionAdmin
)

var permissionNames = map[PermissionFlag]string{
	PermissionFree:   "free",
	PermissionPaid:   "paid",
	PermissionEditor: "editor",
	PermissionAdmin:  "admin",
}

// Includes reports whether p is at least the required level.
func (p PermissionFlag) Includes(required PermissionFlag) bool {
	return p.Valid() && p >= required
}

// Valid reports whether p is one of the known levels.
func (p PermissionFlag) Valid() bool {
	_, ok := permissionNames[p]
	return ok
}

func (p PermissionFlag) String() string {
	if name, ok := permissionNames[p]; ok {
		return name
	}
	return strconv.Itoa(int(p))
}

// ParsePermissionFlag accepts either a level name ("editor") or its number ("3").
func ParsePermissionFlag(s string) (PermissionFlag, error) {
	for flag, name := range permissionNames {
		if name == s {
			return flag, nil
		}
	}

	i, err := strconv.ParseInt(s, 10, 16)
	if err != nil {
		return 0, ErrInvalidPermissionFlag
	}

	flag := PermissionFlag(i)
	if !flag.Valid() {
		return 0, ErrInvalidPermissionFlag
	}
	return flag, nil
}

// MarshalJSON encodes the flag as its name.
func (p PermissionFlag) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(p.String())), nil
}

// UnmarshalJSON decodes a flag from its name or its number.
func (p *PermissionFlag) UnmarshalJSON(jsonValue []byte) error {
	var raw any
	if err := json.Unmarshal(jsonValue, &raw); err != nil {
		return ErrInvalidPermissionFlag
	}

	var (
		flag PermissionFlag
		err  error
	)
	switch v := raw.(type) {
	case string:
		flag, err = ParsePermissionFlag(v)
	case float64:
		flag, err = ParsePermissionFlag(strconv.FormatFloat(v, 'f', -1, 64))
	default:
		err = ErrInvalidPermissionFlag
	}
	if err != nil {
		return err
	}

	*p = flag
	return nil
}

// PermissionFlagValue reports whether a decoded JSON value names a known flag. It is
// meant for body rules, which see values as produced by encoding/json into an any.
func PermissionFlagValue(value any) bool {
	js, err := json.Marshal(value)
	if err != nil {
		return false
	}
	var flag PermissionFlag
	return flag.UnmarshalJSON(js) == nil
}
