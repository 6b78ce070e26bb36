package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gymvietai/payment/internal/domain"
)

// ValidateAmount checks an order amount against the gateway's limits.
func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return domain.ErrValidation("amount must be a positive integer")
	}
	if amount > domain.MaxOrderAmount {
		return domain.ErrValidation(fmt.Sprintf("amount exceeds the limit of %d", domain.MaxOrderAmount))
	}
	return nil
}

func formatValidationErrors(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
