package controllers

import (
	"net/http"

	"github.com/angelmondragon/paytrack/api/middleware"
	"github.com/angelmondragon/paytrack/api/responses"
	"github.com/angelmondragon/paytrack/api/validators"
	"github.com/angelmondragon/paytrack/internal/tracking"
	pkgerrors "github.com/angelmondragon/paytrack/pkg/errors"
	"github.com/angelmondragon/paytrack/pkg/logger"
	"github.com/shopspring/decimal"
)

type checkoutRequest struct {
	ProductName string          `json:"productName" validate:"required,max=200"`
	Price       decimal.Decimal `json:"price" validate:"gt=0"`
}

// Checkout creates a payment for one product and stores its link for the caller's scope.
func Checkout(svc tracking.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tracking service unavailable"))
			return
		}

		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Checkout(r.Context(), middleware.ClientScopeFromContext(r.Context()), tracking.CheckoutRequest{
			ProductName: req.ProductName,
			Price:       req.Price,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ResumePaymentLink returns the stored link while it is still valid. An expired link is cleared and answered with 410.
func ResumePaymentLink(svc tracking.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tracking service unavailable"))
			return
		}
		result, err := svc.ResumePayment(r.Context(), middleware.ClientScopeFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func ClearPaymentLink(svc tracking.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tracking service unavailable"))
			return
		}
		if err := svc.ClearPaymentLink(r.Context(), middleware.ClientScopeFromContext(r.Context())); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

// PaymentStatus backs the payment return page: it starts polling the order, or
// falls back to the result-code display when no order id was passed.
func PaymentStatus(svc tracking.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tracking service unavailable"))
			return
		}
		query := tracking.StatusQuery{
			MerchantOrderID: validators.QueryValue(r, "merchantOrderId", 0),
			Reference:       validators.QueryValue(r, "reference", 0),
			ResultCode:      validators.QueryValue(r, "resultCode", 8),
			Amount:          validators.QueryValue(r, "amount", 32),
		}
		page, err := svc.StatusPage(r.Context(), middleware.ClientScopeFromContext(r.Context()), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
