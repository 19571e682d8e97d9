package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledgermatch/ledgermatch/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrInvalidTransaction = errors.New("invalid bank transaction")
	ErrInvalidSubmission  = errors.New("invalid submission")
	ErrInvalidRule        = errors.New("invalid vendor rule")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateBankTransaction(txn *model.BankTransaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if txn.Description == "" {
		return fmt.Errorf("%w: missing description", ErrInvalidTransaction)
	}
	if txn.Source == "" {
		return fmt.Errorf("%w: missing source", ErrInvalidTransaction)
	}
	return nil
}

func validateSubmission(sub *model.Submission) error {
	if sub == nil {
		return fmt.Errorf("%w: submission", ErrNilParameter)
	}
	if sub.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidSubmission)
	}
	if sub.ExternalID == "" {
		return fmt.Errorf("%w: missing external ID", ErrInvalidSubmission)
	}
	if sub.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidSubmission)
	}
	return nil
}

func validateVendorRule(rule *model.VendorRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if strings.TrimSpace(rule.Pattern) == "" {
		return fmt.Errorf("%w: missing pattern", ErrInvalidRule)
	}
	if strings.TrimSpace(rule.DefaultCategory) == "" {
		return fmt.Errorf("%w: missing default category", ErrInvalidRule)
	}
	if rule.Confidence < 0 || rule.Confidence > 100 {
		return fmt.Errorf("%w: confidence must be between 0 and 100", ErrInvalidRule)
	}
	return nil
}
