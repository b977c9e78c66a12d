package auth

import "errors"

// ErrInvalidCredentials covers unknown emails, wrong passwords and accounts
// without a local password
var ErrInvalidCredentials = errors.New("invalid email or password")
