package warehouses

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

func (s *Service) validate(w Warehouse) error {
	w.Code = strings.TrimSpace(w.Code)
	w.Name = strings.TrimSpace(w.Name)
	if err := s.validator.Struct(w); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			return shared.InvalidOperation("warehouse %s is invalid (%s)", strings.ToLower(fieldErrs[0].Field()), fieldErrs[0].Tag())
		}
		return shared.InvalidOperation("warehouse is invalid: %v", err)
	}
	return nil
}
