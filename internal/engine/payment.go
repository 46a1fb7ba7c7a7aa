package engine

import (
	"context"
	"database/sql"
	"strings"

	"shiftline/internal/audit"
	"shiftline/internal/domain"
)

// Payment entry points. These are the only writers of the lock fields; the
// engine never locks an assignment on its own.

// SetLock marks the assignment as included in paymentID. An empty status
// means DRAFT. Locking again with the same payment advances its status; any
// other payment is refused while the lock holds.
func (e Engine) SetLock(ctx context.Context, id, paymentID string, status domain.PaymentStatus, actorID string) (domain.Assignment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if status == "" {
		status = domain.PaymentDraft
	}
	return e.updateAssignment(ctx, audit.OpPaymentLock, id, actorID, func(ctx context.Context, tx *sql.Tx, a domain.Assignment) (domain.Assignment, error) {
		if paymentID == "" {
			return a, validationf("payment id is required")
		}
		if !status.Lockable() {
			return a, validationf("payment status %q cannot hold a lock", status)
		}
		if a.PaidInPaymentID != nil {
			return a, lockedError(*a.PaidInPaymentID)
		}
		if a.IncludedInPaymentID != nil && *a.IncludedInPaymentID != paymentID {
			return a, lockedError(*a.IncludedInPaymentID)
		}
		a.IncludedInPaymentID = &paymentID
		a.PaymentStatus = status
		return a, nil
	})
}

// ClearLock releases the payment reference and makes the assignment
// editable again. A paid assignment stays locked.
func (e Engine) ClearLock(ctx context.Context, id, actorID string) (domain.Assignment, error) {
	return e.release(ctx, audit.OpPaymentUnlock, id, domain.PaymentUnpaid, actorID)
}

// CancelLock releases the reference because the payment batch was
// cancelled; the assignment records CANCELLED and is editable again.
func (e Engine) CancelLock(ctx context.Context, id, actorID string) (domain.Assignment, error) {
	return e.release(ctx, audit.OpPaymentCancel, id, domain.PaymentCancelled, actorID)
}

func (e Engine) release(ctx context.Context, op, id string, status domain.PaymentStatus, actorID string) (domain.Assignment, error) {
	return e.updateAssignment(ctx, op, id, actorID, func(ctx context.Context, tx *sql.Tx, a domain.Assignment) (domain.Assignment, error) {
		if a.PaidInPaymentID != nil {
			return a, lockedError(*a.PaidInPaymentID)
		}
		a.IncludedInPaymentID = nil
		a.PaymentStatus = status
		return a, nil
	})
}

// FinalizeLock records that paymentID paid the assignment. The assignment
// must already be locked by that payment; the result is terminal.
func (e Engine) FinalizeLock(ctx context.Context, id, paymentID, actorID string) (domain.Assignment, error) {
	paymentID = strings.TrimSpace(paymentID)
	return e.updateAssignment(ctx, audit.OpPaymentFinalize, id, actorID, func(ctx context.Context, tx *sql.Tx, a domain.Assignment) (domain.Assignment, error) {
		if paymentID == "" {
			return a, validationf("payment id is required")
		}
		if a.PaidInPaymentID != nil {
			return a, lockedError(*a.PaidInPaymentID)
		}
		if a.IncludedInPaymentID == nil {
			return a, validationf("assignment %s is not included in payment %s", a.ID, paymentID)
		}
		if *a.IncludedInPaymentID != paymentID {
			return a, lockedError(*a.IncludedInPaymentID)
		}
		a.PaidInPaymentID = &paymentID
		a.PaymentStatus = domain.PaymentPaid
		return a, nil
	})
}
