package orders

import (
	"net/http"

	"github.com/angelmondragon/marketcore/api/middleware"
	"github.com/angelmondragon/marketcore/api/responses"
	"github.com/angelmondragon/marketcore/api/validators"
	"github.com/angelmondragon/marketcore/internal/intake"
	internalorders "github.com/angelmondragon/marketcore/internal/orders"
	pkgerrors "github.com/angelmondragon/marketcore/pkg/errors"
	"github.com/angelmondragon/marketcore/pkg/logger"
)

const maxReasonLength = 500

// Create places an order. A replay of an earlier request under the same
// client_provided_id answers 200 with the original order.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		var draft intake.Draft
		if err := validators.DecodeJSONBody(r, &draft); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), middleware.AuthFromContext(r.Context()), draft)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.Duplicate {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, result.Order)
	}
}

// Detail returns a single order with its items and status history.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), middleware.AuthFromContext(r.Context()), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

type transitionRequest struct {
	Status string  `json:"status" validate:"required"`
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// Transition moves an order to the requested status.
func Transition(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload transitionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Transition(r.Context(), middleware.AuthFromContext(r.Context()), internalorders.TransitionInput{
			OrderID: orderID,
			Status:  payload.Status,
			Reason:  sanitizeReason(payload.Reason),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

type cancelRequest struct {
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=500"`
	Refund bool    `json:"refund"`
}

// Cancel cancels an order, optionally refunding a paid one. An empty body is
// a plain cancel.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		order, err := svc.Cancel(r.Context(), middleware.AuthFromContext(r.Context()), internalorders.CancelInput{
			OrderID: orderID,
			Reason:  sanitizeReason(payload.Reason),
			Refund:  payload.Refund,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func sanitizeReason(reason *string) *string {
	if reason == nil {
		return nil
	}
	clean := validators.SanitizeString(*reason, maxReasonLength)
	if clean == "" {
		return nil
	}
	return &clean
}
