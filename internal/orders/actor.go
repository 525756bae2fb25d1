package orders

import "fmt"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleStaff    Role = "staff"
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
)

// Actor is the caller of a lifecycle operation. It is passed explicitly
// instead of being looked up from session state.
type Actor struct {
	UserID         string `json:"user_id" validate:"required"`
	Role           Role   `json:"role" validate:"required,oneof=admin staff customer vendor"`
	ActingAsVendor bool   `json:"acting_as_vendor"`
}

func (a Actor) Validate() error {
	if err := validate.Struct(a); err != nil {
		return fmt.Errorf("%w: actor: %v", ErrForbidden, err)
	}
	return nil
}

func (a Actor) BackOffice() bool {
	return a.Role == RoleAdmin || a.Role == RoleStaff
}

// CanAccess: back office sees every order, customers only their own.
func (a Actor) CanAccess(o *Order) bool {
	return a.BackOffice() || (a.Role == RoleCustomer && a.UserID == o.CustomerID)
}
