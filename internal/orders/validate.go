package orders

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateItems checks an item list at the boundary, before any stock is touched.
func ValidateItems(items []OrderItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: order has no items", ErrValidation)
	}
	if len(items) > 200 {
		return fmt.Errorf("%w: too many items", ErrValidation)
	}
	for i, it := range items {
		if err := validate.Struct(it); err != nil {
			return fmt.Errorf("%w: items[%d]: %v", ErrValidation, i, err)
		}
		for j, l := range it.Sizes {
			if l.UnitPrice.IsNegative() {
				return fmt.Errorf("%w: items[%d].sizes[%d]: negative unit price", ErrValidation, i, j)
			}
		}
	}
	return nil
}

// ValidateStruct runs struct tag validation and wraps failures in ErrValidation.
func ValidateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
