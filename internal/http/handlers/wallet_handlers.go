package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"veilink/internal/ledger"
)

// NewWalletMeHandler returns GET /wallet/me handler.
func NewWalletMeHandler(svc *ledger.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := callerClaims(w, r)
		if !ok {
			return
		}

		wallet, err := svc.Balance(r.Context(), claims.AccountID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load wallet")
			return
		}
		writeJSON(w, http.StatusOK, wallet)
	}
}

// NewWalletDepositHandler returns POST /wallet/me/deposit handler.
func NewWalletDepositHandler(svc *ledger.Service) http.HandlerFunc {
	type request struct {
		AmountCents int64  `json:"amount_cents"`
		MethodRef   string `json:"method_ref"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := callerClaims(w, r)
		if !ok {
			return
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.AmountCents <= 0 {
			writeError(w, http.StatusBadRequest, "amount_cents must be positive")
			return
		}

		wallet, err := svc.Deposit(r.Context(), claims.AccountID, req.AmountCents, req.MethodRef)
		if err != nil {
			switch {
			case errors.Is(err, ledger.ErrPaymentDeclined):
				writeError(w, http.StatusPaymentRequired, "payment declined")
			case errors.Is(err, ledger.ErrPaymentFailed):
				writeError(w, http.StatusBadGateway, "payment provider unavailable")
			default:
				writeError(w, http.StatusInternalServerError, "failed to deposit")
			}
			return
		}
		writeJSON(w, http.StatusOK, wallet)
	}
}

// NewWalletTransactionsHandler returns GET /wallet/me/transactions handler.
func NewWalletTransactionsHandler(svc *ledger.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := callerClaims(w, r)
		if !ok {
			return
		}

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 || parsed > 500 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = parsed
		}

		transactions, err := svc.History(r.Context(), claims.AccountID, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load transactions")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"transactions": transactions,
		})
	}
}
