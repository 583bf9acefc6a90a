// internal/handler/wallet_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"funding-service/internal/auth"
	"funding-service/internal/domain"
	"funding-service/internal/usecase"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type WalletHandler struct {
	initiateUC  *usecase.InitiateUsecase
	reconcileUC *usecase.ReconcileUsecase
	walletUC    *usecase.WalletUsecase
	logger      *zap.Logger
}

func NewWalletHandler(
	initiateUC *usecase.InitiateUsecase,
	reconcileUC *usecase.ReconcileUsecase,
	walletUC *usecase.WalletUsecase,
	logger *zap.Logger,
) *WalletHandler {
	return &WalletHandler{
		initiateUC:  initiateUC,
		reconcileUC: reconcileUC,
		walletUC:    walletUC,
		logger:      logger,
	}
}

type fundRequest struct {
	// Amount accepts a JSON number or a numeric string.
	Amount      json.Number `json:"amount"`
	RedirectURL string      `json:"redirectUrl"`
}

// HandleFund starts a wallet deposit and returns the gateway checkout URL.
func (h *WalletHandler) HandleFund(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		sendError(w, r, http.StatusUnauthorized, "missing user identity")
		return
	}

	var req fundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, err := domain.ParseAmount(req.Amount.String())
	if err != nil {
		sendError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.initiateUC.Initiate(r.Context(), &usecase.InitiateRequest{
		Owner:       owner.ID,
		PayerEmail:  owner.Email,
		Amount:      amount,
		RedirectURL: strings.TrimSpace(req.RedirectURL),
	})
	if err != nil {
		h.logger.Warn("funding initiation failed",
			zap.String("owner", owner.ID),
			zap.Error(err))
		sendDomainError(w, r, h.logger, err)
		return
	}

	sendSuccess(w, r, http.StatusCreated, "payment initialized", map[string]interface{}{
		"transaction": res.Transaction,
		"checkoutUrl": res.CheckoutURL,
	})
}

// HandleVerify reconciles a transaction on demand and returns its state.
func (h *WalletHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		sendError(w, r, http.StatusUnauthorized, "missing user identity")
		return
	}

	reference := strings.TrimSpace(chi.URLParam(r, "reference"))
	if reference == "" {
		sendError(w, r, http.StatusBadRequest, "reference is required")
		return
	}

	tx, err := h.reconcileUC.ReconcileByPoll(r.Context(), reference, owner.ID)
	if err != nil {
		sendDomainError(w, r, h.logger, err)
		return
	}

	sendSuccess(w, r, http.StatusOK, "transaction status", tx)
}

func (h *WalletHandler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		sendError(w, r, http.StatusUnauthorized, "missing user identity")
		return
	}

	wallet, err := h.walletUC.GetBalance(r.Context(), owner.ID)
	if err != nil {
		sendDomainError(w, r, h.logger, err)
		return
	}

	sendSuccess(w, r, http.StatusOK, "wallet balance", wallet)
}

func (h *WalletHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		sendError(w, r, http.StatusUnauthorized, "missing user identity")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	txs, err := h.walletUC.ListTransactions(r.Context(), owner.ID, limit, offset)
	if err != nil {
		sendDomainError(w, r, h.logger, err)
		return
	}

	sendSuccess(w, r, http.StatusOK, "transactions", txs)
}
