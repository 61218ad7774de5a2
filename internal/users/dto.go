package users

// CreateUserRequest carries the create-user form payload.
type CreateUserRequest struct {
	Name                 string `validate:"required,max=255"`
	Email                string `validate:"required,email,max=255"`
	Password             string `validate:"required,min=8"`
	PasswordConfirmation string `validate:"required,eqfield=Password"`
	Role                 string `validate:"omitempty,max=255"`
}

// UpdateUserRequest carries the edit-user form payload.
type UpdateUserRequest struct {
	Name  string `validate:"required,max=255"`
	Email string `validate:"required,email,max=255"`
}

// ListFilters controls ordering and paging of the users listing.
type ListFilters struct {
	SortBy  string
	SortDir string
	Page    int
}
