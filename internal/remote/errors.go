package remote

import (
	"fmt"

	"conveyor/internal/services"
)

// ErrUnsupportedOperation is returned by Execute for unknown operations.
var ErrUnsupportedOperation = fmt.Errorf("%w: remote: unsupported operation", services.ErrValidation)

// ErrAuthentication marks a credential the grid rejected.
var ErrAuthentication = fmt.Errorf("%w: remote: authentication failed", services.ErrExecution)
