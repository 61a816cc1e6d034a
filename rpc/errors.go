package rpc

import (
	"errors"
	"net/http"

	"tipledger/native/tipvault"
)

// tipErrorStatus translates engine failures into a stable JSON-RPC code and
// message.
func tipErrorStatus(err error) (int, int, string) {
	switch {
	case errors.Is(err, tipvault.ErrUnauthorized),
		errors.Is(err, tipvault.ErrIdentityMismatch):
		return http.StatusForbidden, codeTipForbidden, "forbidden"
	case errors.Is(err, tipvault.ErrConfigNotFound),
		errors.Is(err, tipvault.ErrVaultNotFound),
		errors.Is(err, tipvault.ErrAllowanceNotFound),
		errors.Is(err, tipvault.ErrFeeVaultNotFound):
		return http.StatusNotFound, codeTipNotFound, "not_found"
	case errors.Is(err, tipvault.ErrAlreadyInitialized),
		errors.Is(err, tipvault.ErrAlreadyRegistered),
		errors.Is(err, tipvault.ErrDuplicateTip):
		return http.StatusConflict, codeTipConflict, "conflict"
	case errors.Is(err, tipvault.ErrInsufficientAllowance),
		errors.Is(err, tipvault.ErrInsufficientVaultBalance),
		errors.Is(err, tipvault.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, codeTipInsufficient, "insufficient_funds"
	case errors.Is(err, tipvault.ErrArithmeticOverflow):
		return http.StatusUnprocessableEntity, codeTipOverflow, "overflow"
	case errors.Is(err, tipvault.ErrInvalidFeeRate),
		errors.Is(err, tipvault.ErrInvalidAmount),
		errors.Is(err, tipvault.ErrInvalidRelayer),
		errors.Is(err, tipvault.ErrInvalidTokenMint),
		errors.Is(err, tipvault.ErrInvalidHashedIdentity),
		errors.Is(err, tipvault.ErrInvalidDestination),
		errors.Is(err, tipvault.ErrTipIDRequired):
		return http.StatusBadRequest, codeTipInvalid, "invalid_request"
	default:
		return http.StatusInternalServerError, codeServerError, "internal_error"
	}
}

func writeTipError(w http.ResponseWriter, id interface{}, err error) {
	if err == nil {
		return
	}
	status, code, message := tipErrorStatus(err)
	writeError(w, status, id, code, message, err.Error())
}
