package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTransientNetwork marks timeouts, connection failures and retryable status codes.
	ErrTransientNetwork = errors.New("transient network error")
	// ErrServiceRejection marks application-level refusals from the hosting or messaging service.
	ErrServiceRejection = errors.New("service rejected request")
	// ErrNotFound marks an expected record that is absent.
	ErrNotFound = errors.New("not found")
	// ErrPersistence marks a store read or write failure.
	ErrPersistence = errors.New("persistence error")
	// ErrDuplicate marks a uniqueness violation in the store.
	ErrDuplicate = errors.New("duplicate record")
)

// Transient wraps err as ErrTransientNetwork.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransientNetwork, err)
}

// Rejected builds an ErrServiceRejection carrying the service description.
func Rejected(service, description string) error {
	return fmt.Errorf("%w: %s: %s", ErrServiceRejection, service, description)
}

// Persistence wraps err as ErrPersistence unless it already carries a store sentinel.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDuplicate) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrPersistence) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
