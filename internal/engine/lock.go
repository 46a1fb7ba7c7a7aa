package engine

import "shiftline/internal/domain"

// AssertEditable fails with ErrLocked while a payment batch references a.
// It only reads the lock; SetLock and ClearLock are the sole writers.
func AssertEditable(a domain.Assignment) error {
	if a.IsEditable() {
		return nil
	}
	return lockedError(*a.IncludedInPaymentID)
}

// AssertReEvaluatable applies the same rule to evaluation.
func AssertReEvaluatable(a domain.Assignment) error {
	if a.IsReEvaluatable() {
		return nil
	}
	return lockedError(*a.IncludedInPaymentID)
}
