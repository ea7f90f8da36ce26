package internal

import (
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("not found")

type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError rejects an invoice at the ingestion boundary.
type ValidationError struct {
	InvoiceID string       `json:"invoiceId,omitempty"`
	Fields    []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	if e.InvoiceID != "" {
		return fmt.Sprintf("invalid invoice %s: %s", e.InvoiceID, strings.Join(parts, "; "))
	}
	return "invalid invoice: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate invoice id: %s", e.ID)
}

// StorageQuotaError is recovered inside the persistence layer and never
// returned from a repository mutation.
type StorageQuotaError struct {
	Needed int
	Budget int
}

func (e *StorageQuotaError) Error() string {
	return fmt.Sprintf("storage quota exceeded: need %d bytes, budget %d", e.Needed, e.Budget)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsDuplicate(err error) bool {
	var d *DuplicateIDError
	return errors.As(err, &d)
}
