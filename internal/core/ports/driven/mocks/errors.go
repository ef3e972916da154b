package mocks

import "errors"

// ErrInjected is returned by mocks configured to fail.
var ErrInjected = errors.New("injected failure")
