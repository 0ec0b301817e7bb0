package controllers

import (
	"net/http"

	"github.com/angelmondragon/paytrack/api/middleware"
	"github.com/angelmondragon/paytrack/api/responses"
	"github.com/angelmondragon/paytrack/api/validators"
	"github.com/angelmondragon/paytrack/internal/tracking"
	"github.com/angelmondragon/paytrack/pkg/enums"
	pkgerrors "github.com/angelmondragon/paytrack/pkg/errors"
	"github.com/angelmondragon/paytrack/pkg/logger"
)

type simulateRequest struct {
	MerchantOrderID string `json:"merchantOrderId" validate:"required,max=128,orderid"`
	ResultCode      string `json:"resultCode" validate:"required,oneof=00 02"`
}

// SandboxSimulate asks the backend to fake a gateway callback, then re-polls the order.
func SandboxSimulate(svc tracking.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tracking service unavailable"))
			return
		}
		var req simulateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		code := enums.ResultCode(req.ResultCode)
		if err := svc.Simulate(r.Context(), middleware.ClientScopeFromContext(r.Context()), req.MerchantOrderID, code); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{
			"merchantOrderId": req.MerchantOrderID,
			"resultCode":      code.String(),
			"status":          "simulated",
		})
	}
}
