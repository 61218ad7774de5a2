package users

import "errors"

// ErrUnknownRole is returned when a create/assign request references a role
// name that does not exist.
var ErrUnknownRole = errors.New("users: role does not exist")
