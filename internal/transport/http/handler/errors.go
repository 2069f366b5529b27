package handler

const (
	errInternalServer      = "Internal server error"
	errInvalidSubscription = "Name or email is missing or invalid"
	errTokenInvalid        = "Confirmation link is invalid or expired"
	errInvalidEmail        = "Email query parameter is missing or invalid"
	errSubscriberNotFound  = "Subscriber not found"
)
