package errors

import "fmt"

var (
	ErrIdentityLength    = fmt.Errorf("username must be 2-32 characters")
	ErrIdentityCharset   = fmt.Errorf("username can only contain letters, numbers, _ and -")
	ErrAuthRequired      = fmt.Errorf("not authenticated")
	ErrAlreadyJoined     = fmt.Errorf("already joined")
	ErrRecipientRequired = fmt.Errorf("recipient is required")
	ErrEmptyMessage      = fmt.Errorf("message text is required")
	ErrPersistence       = fmt.Errorf("message store unavailable")
	ErrWorkerPanic       = fmt.Errorf("worker panic")
)
