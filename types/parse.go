package types

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ParsePaymentRequirements parses and validates PaymentRequirements from JSON.
func ParsePaymentRequirements(data []byte) (*PaymentRequirements, error) {
	var req PaymentRequirements

	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &X402Error{
			Code:    ErrServerMisconfigured,
			Message: fmt.Sprintf("failed to parse payment requirements: %v", err),
		}
	}

	if err := validate.Struct(&req); err != nil {
		return nil, &X402Error{
			Code:    ErrServerMisconfigured,
			Message: fmt.Sprintf("payment requirements validation failed: %v", err),
		}
	}

	return &req, nil
}

// CheckRequirements runs struct-tag validation over an already-built
// requirements value. Used by the gate before issuing a challenge.
func CheckRequirements(req *PaymentRequirements) error {
	if err := validate.Struct(req); err != nil {
		return &X402Error{
			Code:    ErrServerMisconfigured,
			Message: fmt.Sprintf("payment requirements validation failed: %v", err),
		}
	}
	return req.Validate()
}
