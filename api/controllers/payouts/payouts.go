package payouts

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketcore/api/middleware"
	"github.com/angelmondragon/marketcore/api/responses"
	"github.com/angelmondragon/marketcore/api/validators"
	internalpayouts "github.com/angelmondragon/marketcore/internal/payouts"
	pkgerrors "github.com/angelmondragon/marketcore/pkg/errors"
	"github.com/angelmondragon/marketcore/pkg/logger"
	"github.com/angelmondragon/marketcore/pkg/pagination"
)

// Balance returns the vendor's settlement position.
func Balance(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		vendorID, err := validators.PathInt64(r, "vendorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.Balance(r.Context(), middleware.AuthFromContext(r.Context()), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}

// List returns one page of the vendor's payout history, newest first.
// Pass next_cursor back as ?cursor= to continue.
func List(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		vendorID, err := validators.PathInt64(r, "vendorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListPayouts(r.Context(), middleware.AuthFromContext(r.Context()), vendorID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

type payoutRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Method string           `json:"method" validate:"required"`
}

type payoutResponse struct {
	PayoutID uuid.UUID `json:"payout_id"`
}

// Request records a pending payout. A missing amount requests the full
// available balance.
func Request(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		vendorID, err := validators.PathInt64(r, "vendorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload payoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout, err := svc.RequestPayout(r.Context(), middleware.AuthFromContext(r.Context()), internalpayouts.PayoutRequest{
			VendorID: vendorID,
			Amount:   payload.Amount,
			Method:   payload.Method,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, payoutResponse{PayoutID: payout.ID})
	}
}
