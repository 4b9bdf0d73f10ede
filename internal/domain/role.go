package domain

// Roles carried in the role claim of access tokens.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)
