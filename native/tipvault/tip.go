package tipvault

import (
	"tipledger/core/events"
	"tipledger/crypto"
)

// TipRequest identifies the accounts and amount of a relayer-executed tip.
// TipID and Memo are opaque audit tags echoed into the emitted event.
type TipRequest struct {
	SenderVault           crypto.Address
	SenderAllowance       crypto.Address
	RecipientVault        crypto.Address
	Amount                uint64
	TipID                 TipID
	Memo                  *string
	RecipientHashedUserID HashedIdentity
}

// TipResult reports the committed effect of a tip.
type TipResult struct {
	Amount             uint64
	FeeAmount          uint64
	TotalAmount        uint64
	FeeBps             uint16
	AllowanceRemaining uint64
	FeeVault           crypto.Address
}

// Tip moves req.Amount from the sender vault to the recipient vault, routes
// the fee to the fee vault and debits the sender allowance by amount+fee.
// Every check runs before the first write so a failure leaves no trace.
func (e *Engine) Tip(caller crypto.Address, req TipRequest) (*TipResult, error) {
	if req.Amount == 0 {
		return nil, ErrInvalidAmount
	}
	if req.RecipientHashedUserID.IsZero() {
		return nil, ErrInvalidHashedIdentity
	}
	if e.replayGuard && req.TipID.IsZero() {
		return nil, ErrTipIDRequired
	}
	var (
		result TipResult
		evt    events.Tip
	)
	err := e.update(func(st State) error {
		cfg, err := loadConfig(st)
		if err != nil {
			return err
		}
		if cfg.Relayer != caller {
			return ErrUnauthorized
		}

		sender, err := loadVault(st, req.SenderVault)
		if err != nil {
			return err
		}
		allowance, err := loadAllowance(st, req.SenderAllowance)
		if err != nil {
			return err
		}
		if allowance.HashedUserID != sender.HashedUserID || allowance.Authority != sender.Authority {
			return ErrIdentityMismatch
		}
		recipient, err := loadVault(st, req.RecipientVault)
		if err != nil {
			return err
		}
		if recipient.HashedUserID != req.RecipientHashedUserID {
			return ErrIdentityMismatch
		}
		if req.SenderVault == req.RecipientVault {
			return ErrIdentityMismatch
		}
		if sender.TokenMint != cfg.TokenMint || recipient.TokenMint != cfg.TokenMint {
			return ErrInvalidTokenMint
		}

		var receiptAddr crypto.Address
		if e.replayGuard {
			receiptAddr = TipReceiptAddress(req.TipID)
			_, seen, err := st.TipReceiptGet(receiptAddr)
			if err != nil {
				return err
			}
			if seen {
				return ErrDuplicateTip
			}
		}

		fee, total, err := CalculateFee(req.Amount, cfg.FeeBps)
		if err != nil {
			return err
		}
		if total > allowance.Remaining {
			return ErrInsufficientAllowance
		}
		balance, err := st.TokenBalance(cfg.TokenMint, req.SenderVault)
		if err != nil {
			return err
		}
		if balance < total {
			return ErrInsufficientVaultBalance
		}

		feeVaultAddr := FeeVaultAddress()
		_, feeVaultExists, err := st.TipFeeVaultGet(feeVaultAddr)
		if err != nil {
			return err
		}

		// Writes start here.
		if !feeVaultExists {
			if err := st.TipFeeVaultPut(feeVaultAddr, &FeeVault{Config: ConfigAddress(), TokenMint: cfg.TokenMint}); err != nil {
				return err
			}
		}
		if err := st.TokenTransfer(cfg.TokenMint, req.SenderVault, req.RecipientVault, req.Amount); err != nil {
			return vaultTransferError(err)
		}
		if fee > 0 {
			if err := st.TokenTransfer(cfg.TokenMint, req.SenderVault, feeVaultAddr, fee); err != nil {
				return vaultTransferError(err)
			}
		}
		allowance.Remaining -= total
		if err := st.TipAllowancePut(req.SenderAllowance, allowance); err != nil {
			return err
		}
		if e.replayGuard {
			receipt := &TipReceipt{
				TipID:       req.TipID,
				SenderVault: req.SenderVault,
				Amount:      req.Amount,
				ExecutedAt:  e.now(),
			}
			if err := st.TipReceiptPut(receiptAddr, receipt); err != nil {
				return err
			}
		}

		result = TipResult{
			Amount:             req.Amount,
			FeeAmount:          fee,
			TotalAmount:        total,
			FeeBps:             cfg.FeeBps,
			AllowanceRemaining: allowance.Remaining,
			FeeVault:           feeVaultAddr,
		}
		evt = events.Tip{
			Relayer:               caller,
			SenderVault:           req.SenderVault,
			RecipientVault:        req.RecipientVault,
			SenderHashedUserID:    sender.HashedUserID,
			RecipientHashedUserID: recipient.HashedUserID,
			FeeVault:              feeVaultAddr,
			Amount:                req.Amount,
			AllowanceRemaining:    allowance.Remaining,
			TipID:                 req.TipID,
			FeeAmount:             fee,
			TotalAmount:           total,
			FeeBps:                cfg.FeeBps,
			Memo:                  copyMemo(req.Memo),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emit(evt)
	return &result, nil
}

func copyMemo(memo *string) *string {
	if memo == nil {
		return nil
	}
	value := *memo
	return &value
}
