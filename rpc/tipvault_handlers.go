package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"tipledger/crypto"
	"tipledger/native/tipvault"
)

type initializeConfigParams struct {
	Relayer   string `json:"relayer"`
	TokenMint string `json:"tokenMint"`
	FeeBps    uint64 `json:"feeBps"`
}

type setRelayerParams struct {
	Relayer string `json:"relayer"`
}

type setFeeRateParams struct {
	FeeBps uint64 `json:"feeBps"`
}

type registerParams struct {
	HashedUserID string `json:"hashedUserId"`
}

type depositParams struct {
	Vault  string `json:"vault"`
	Amount string `json:"amount"`
}

type allowanceParams struct {
	Allowance string `json:"allowance"`
	Amount    string `json:"amount,omitempty"`
}

type sendParams struct {
	SenderVault           string  `json:"senderVault"`
	SenderAllowance       string  `json:"senderAllowance"`
	RecipientVault        string  `json:"recipientVault"`
	RecipientHashedUserID string  `json:"recipientHashedUserId"`
	Amount                string  `json:"amount"`
	TipID                 string  `json:"tipId,omitempty"`
	Memo                  *string `json:"memo,omitempty"`
}

type withdrawParams struct {
	Vault       string `json:"vault"`
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
}

type withdrawFeeParams struct {
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
}

type lookupParams struct {
	HashedUserID string `json:"hashedUserId,omitempty"`
	Address      string `json:"address,omitempty"`
}

type configResult struct {
	Address          string `json:"address"`
	UpgradeAuthority string `json:"upgradeAuthority"`
	Relayer          string `json:"relayer"`
	TokenMint        string `json:"tokenMint"`
	FeeBps           uint16 `json:"feeBps"`
}

type vaultResult struct {
	Address      string `json:"address"`
	Authority    string `json:"authority"`
	TokenMint    string `json:"tokenMint"`
	HashedUserID string `json:"hashedUserId"`
	Balance      string `json:"balance"`
}

type allowanceResult struct {
	Address      string `json:"address"`
	Authority    string `json:"authority"`
	HashedUserID string `json:"hashedUserId"`
	Cap          string `json:"cap"`
	Remaining    string `json:"remaining"`
}

type feeVaultResult struct {
	Address   string `json:"address"`
	Config    string `json:"config"`
	TokenMint string `json:"tokenMint"`
	Balance   string `json:"balance"`
}

type registerResult struct {
	Vault     vaultResult     `json:"vault"`
	Allowance allowanceResult `json:"allowance"`
}

type sendResult struct {
	Amount             string `json:"amount"`
	FeeAmount          string `json:"feeAmount"`
	TotalAmount        string `json:"totalAmount"`
	FeeBps             uint16 `json:"feeBps"`
	AllowanceRemaining string `json:"allowanceRemaining"`
	FeeVault           string `json:"feeVault"`
}

type balanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type addressesResult struct {
	Config    string `json:"config"`
	Vault     string `json:"vault"`
	Allowance string `json:"allowance"`
	FeeVault  string `json:"feeVault"`
}

type okResult struct {
	OK bool `json:"ok"`
}

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

func formatConfig(cfg *tipvault.Config) configResult {
	return configResult{
		Address:          tipvault.ConfigAddress().String(),
		UpgradeAuthority: cfg.UpgradeAuthority.String(),
		Relayer:          cfg.Relayer.String(),
		TokenMint:        cfg.TokenMint.String(),
		FeeBps:           cfg.FeeBps,
	}
}

func formatVault(vault *tipvault.Vault, balance uint64) vaultResult {
	return vaultResult{
		Address:      vault.Address().String(),
		Authority:    vault.Authority.String(),
		TokenMint:    vault.TokenMint.String(),
		HashedUserID: vault.HashedUserID.String(),
		Balance:      formatUint(balance),
	}
}

func formatAllowance(allowance *tipvault.Allowance) allowanceResult {
	return allowanceResult{
		Address:      allowance.Address().String(),
		Authority:    allowance.Authority.String(),
		HashedUserID: allowance.HashedUserID.String(),
		Cap:          formatUint(allowance.Cap),
		Remaining:    formatUint(allowance.Remaining),
	}
}

func parseAddressField(name, value string) (crypto.Address, error) {
	if strings.TrimSpace(value) == "" {
		return crypto.Address{}, fmt.Errorf("%s required", name)
	}
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%s: %w", name, err)
	}
	return addr, nil
}

func parseAmountField(name, value string) (uint64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("%s required", name)
	}
	amount, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an unsigned 64-bit integer", name)
	}
	return amount, nil
}

// decodeSigned authenticates the single parameter object of req and decodes
// it into out.
func (s *Server) decodeSigned(w http.ResponseWriter, req *RPCRequest, out interface{}) (crypto.Address, bool) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "exactly one parameter object expected", nil)
		return crypto.Address{}, false
	}
	caller, status, rpcErr := s.authenticate(req.Method, req.Params[0])
	if rpcErr != nil {
		writeRPCError(w, status, req.ID, rpcErr)
		return crypto.Address{}, false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return crypto.Address{}, false
	}
	return caller, true
}

func decodeParams(w http.ResponseWriter, req *RPCRequest, out interface{}) bool {
	if len(req.Params) == 0 {
		return true
	}
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "at most one parameter object expected", nil)
		return false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return false
	}
	return true
}

func invalidParams(w http.ResponseWriter, req *RPCRequest, err error) {
	writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
}

func (s *Server) handleInitializeConfig(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params initializeConfigParams
	caller, ok := s.decodeSigned(w, req, &params)
	if !ok {
		return
	}
	relayer, err := parseAddressField("relayer", params.Relayer)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	mint, err := parseAddressField("tokenMint", params.TokenMint)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	feeBps, err := tipvault.ValidateFeeBps(params.FeeBps)
	if err != nil {
		writeTipError(w, req.ID, err)
		return
	}
	cfg, err := s.engine.InitializeConfig(caller, tipvault.InitializeConfigArgs{Relayer: relayer, TokenMint: mint, FeeBps: feeBps})
	if err != nil {
		writeTipError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatConfig(cfg))
}

func (s *Server) handleSetRelayer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params setRelayerParams
	caller, ok := s.decodeSigned(w, req, &params)
	if !ok {
		return
	}
	relayer, err := parseAddressField("relayer", params.Relayer)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	if err := s.engine.SetRelayer(caller, relayer); err != nil {
		writeTipError(w, req.ID, err)
		return
	}
	s.writeConfig(w, req)
}

func (s *Server) handleSetFeeRate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params setFeeRateParams
	caller, ok := s.decodeSigned(w, req, &params)
	if !ok {
		return
	}
	feeBps, err := tipvault.ValidateFeeBps(params.FeeBps)
	if err != nil {
		writeTipError(w, req.ID, err)
		return
	}
	if err := s.engine.SetFeeRate(caller, feeBps); err != nil {
		writeTipError(w, req.ID, err)
		return
	}
	s.writeConfig(w, req)
}

func (s *Server) writeConfig(w http.ResponseWriter, req *RPCRequest) {
	cfg, err := s.engine.Config()
	if err != nil {
		writeTipError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatConfig(cfg))
}

func (s *Server) handleRegister(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params registerParams
	caller, ok := s.decodeSigned(w, req, &params)
	if !ok {
		return
	}
	id, err := tipvault.ParseHashedIdentity(params.HashedUserID)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	vault, allowance, err := s.engine.Register(caller, id)
	if err != nil {
		writeTipError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, registerResult{Vault: formatVault(vault, 0), Allowance: formatAllowance(allowance)})
}

func (s *Server) handleDeposit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params depositParams
	caller, ok := s.decodeSigned(w, req, &params)
	if !ok {
		return
	}
	vaultAddr, err := parseAddressField("vault", params.Vault)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	amount, err := parseAmountField("amount", params.Amount)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	if err := s.engine.Deposit(caller, vaultAddr, amount); err != nil {
		writeTipError(w, req.ID, err)
		return
	}
	s.writeVaultAt(w, req, vaultAddr)
}

func (s *Server) handleApproveAllowance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params allowanceParams
	caller, ok := s.decodeSigned(w, req, &params)
	if !ok {
		return
	}
	allowanceAddr, err := parseAddressField("allowance", params.Allowance)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	amount, err := parseAmountField("amount", params.Amount)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	allowance, err := s.engine.ApproveAllowance(caller, allowanceAddr, amount)
	if err != nil {
		writeTipError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatAllowance(allowance))
}

func (s *Server) handleRevokeAllowance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params allowanceParams
	caller, ok := s.decodeSigned(w, req, &params)
	if !ok {
		return
	}
	allowanceAddr, err := parseAddressField("allowance", params.Allowance)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	allowance, err := s.engine.RevokeAllowance(caller, allowanceAddr)
	if err != nil {
		writeTipError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatAllowance(allowance))
}

func (s *Server) handleSend(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params sendParams
	caller, ok := s.decodeSigned(w, req, &params)
	if !ok {
		return
	}
	tipReq, err := params.request()
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	result, err := s.engine.Tip(caller, tipReq)
	if err != nil {
		writeTipError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, sendResult{
		Amount:             formatUint(result.Amount),
		FeeAmount:          formatUint(result.FeeAmount),
		TotalAmount:        formatUint(result.TotalAmount),
		FeeBps:             result.FeeBps,
		AllowanceRemaining: formatUint(result.AllowanceRemaining),
		FeeVault:           result.FeeVault.String(),
	})
}

func (p sendParams) request() (tipvault.TipRequest, error) {
	var out tipvault.TipRequest
	var err error
	if out.SenderVault, err = parseAddressField("senderVault", p.SenderVault); err != nil {
		return out, err
	}
	if out.SenderAllowance, err = parseAddressField("senderAllowance", p.SenderAllowance); err != nil {
		return out, err
	}
	if out.RecipientVault, err = parseAddressField("recipientVault", p.RecipientVault); err != nil {
		return out, err
	}
	if out.RecipientHashedUserID, err = tipvault.ParseHashedIdentity(p.RecipientHashedUserID); err != nil {
		return out, err
	}
	if out.Amount, err = parseAmountField("amount", p.Amount); err != nil {
		return out, err
	}
	if out.TipID, err = tipvault.ParseTipID(p.TipID); err != nil {
		return out, err
	}
	out.Memo = p.Memo
	return out, nil
}

func (s *Server) handleWithdraw(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params withdrawParams
	caller, ok := s.decodeSigned(w, req, &params)
	if !ok {
		return
	}
	vaultAddr, err := parseAddressField("vault", params.Vault)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	destination, err := parseAddressField("destination", params.Destination)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	amount, err := parseAmountField("amount", params.Amount)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	if err := s.engine.Withdraw(caller, vaultAddr, destination, amount); err != nil {
		writeTipError(w, req.ID, err)
		return
	}
	s.writeVaultAt(w, req, vaultAddr)
}

func (s *Server) handleWithdrawFee(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params withdrawFeeParams
	caller, ok := s.decodeSigned(w, req, &params)
	if !ok {
		return
	}
	destination, err := parseAddressField("destination", params.Destination)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	amount, err := parseAmountField("amount", params.Amount)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	if err := s.engine.WithdrawFee(caller, destination, amount); err != nil {
		writeTipError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.writeConfig(w, req)
}

// resolveLookup accepts either a hashed identity or an address and returns
// the record address for role.
func resolveLookup(params lookupParams, derive func(tipvault.HashedIdentity) crypto.Address) (crypto.Address, error) {
	if strings.TrimSpace(params.HashedUserID) != "" {
		id, err := tipvault.ParseHashedIdentity(params.HashedUserID)
		if err != nil {
			return crypto.Address{}, err
		}
		return derive(id), nil
	}
	return parseAddressField("address", params.Address)
}

func (s *Server) handleGetVault(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params lookupParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, err := resolveLookup(params, tipvault.VaultAddress)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	s.writeVaultAt(w, req, addr)
}

func (s *Server) writeVaultAt(w http.ResponseWriter, req *RPCRequest, addr crypto.Address) {
	vault, err := s.engine.VaultAt(addr)
	if err != nil {
		writeTipError(w, req.ID, err)
		return
	}
	balance, err := s.engine.Balance(addr)
	if err != nil {
		writeTipError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatVault(vault, balance))
}

func (s *Server) handleGetAllowance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params lookupParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, err := resolveLookup(params, tipvault.AllowanceAddress)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	allowance, err := s.engine.AllowanceAt(addr)
	if err != nil {
		writeTipError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatAllowance(allowance))
}

func (s *Server) handleGetFeeVault(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	fv, err := s.engine.FeeVault()
	if err != nil {
		writeTipError(w, req.ID, err)
		return
	}
	addr := tipvault.FeeVaultAddress()
	balance, err := s.engine.Balance(addr)
	if err != nil {
		writeTipError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, feeVaultResult{
		Address:   addr.String(),
		Config:    fv.Config.String(),
		TokenMint: fv.TokenMint.String(),
		Balance:   formatUint(balance),
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params lookupParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, err := parseAddressField("address", params.Address)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	balance, err := s.engine.Balance(addr)
	if err != nil {
		writeTipError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, balanceResult{Address: addr.String(), Balance: formatUint(balance)})
}

func (s *Server) handleDeriveAddresses(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params lookupParams
	if !decodeParams(w, req, &params) {
		return
	}
	id, err := tipvault.ParseHashedIdentity(params.HashedUserID)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	addrs := tipvault.DeriveAddresses(id)
	writeResult(w, req.ID, addressesResult{
		Config:    addrs.Config.String(),
		Vault:     addrs.Vault.String(),
		Allowance: addrs.Allowance.String(),
		FeeVault:  addrs.FeeVault.String(),
	})
}
