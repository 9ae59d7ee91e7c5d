package app

import "errors"

var (
	// ErrInvalidCredentials is returned when the supplied credentials do not match.
	// The message is identical for unknown emails and wrong passwords so that
	// responses cannot be used for account enumeration.
	ErrInvalidCredentials = errors.New("Incorrect email address or password")

	ErrEmailTaken = errors.New("email already registered")

	ErrUserNotFound     = errors.New("user not found")
	ErrPurchaseNotFound = errors.New("purchase not found")
	ErrLocationNotFound = errors.New("location not found")

	// ErrAlreadyGranted rejects a second grant attempt instead of silently
	// repeating the transition.
	ErrAlreadyGranted = errors.New("access already granted")
)

// ValidationError marks malformed or missing input. Handlers map it to 400
// with the message intact.
type ValidationError string

func (e ValidationError) Error() string {
	return string(e)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}
