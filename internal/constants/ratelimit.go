package constants

const (
	// Rate limits (requests per minute)
	GlobalAuthLimit = 60 // register/login/logout
	GlobalAPILimit  = 300
)
