package state

import (
	"crypto/sha256"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tipledger/core/events"
	"tipledger/crypto"
	"tipledger/native/tipvault"
	"tipledger/storage"
)

func newLedger(t *testing.T, db storage.Database) (*Manager, *tipvault.Engine, *events.Recorder) {
	t.Helper()
	mgr := NewManager(db)
	rec := &events.Recorder{}
	engine := tipvault.NewEngine()
	engine.SetStore(mgr.TipvaultStore())
	engine.SetEmitter(rec)
	return mgr, engine, rec
}

func TestTipScenarioOnLevelDB(t *testing.T) {
	db, err := storage.NewLevelDB(filepath.Join(t.TempDir(), "ledger"))
	require.NoError(t, err)
	defer db.Close()
	runScenario(t, db)
}

func TestTipScenarioOnBolt(t *testing.T) {
	db, err := storage.NewBoltDB(filepath.Join(t.TempDir(), "ledger.bolt"))
	require.NoError(t, err)
	defer db.Close()
	runScenario(t, db)
}

func TestTipScenarioInMemory(t *testing.T) {
	runScenario(t, storage.NewMemDB())
}

func runScenario(t *testing.T, db storage.Database) {
	t.Helper()
	mgr, engine, rec := newLedger(t, db)
	authority := addr("authority")
	relayer := addr("relayer")
	mint := addr("mint")
	alice := addr("alice")
	bob := addr("bob")
	treasury := addr("treasury")

	_, err := engine.InitializeConfig(authority, tipvault.InitializeConfigArgs{Relayer: relayer, TokenMint: mint, FeeBps: 50})
	require.NoError(t, err)
	_, err = mgr.ApplyBootstrapBalances(mint, []GenesisBalance{{Owner: alice, Amount: 1_000_000}})
	require.NoError(t, err)

	senderID := tipvault.HashedIdentity(sha256.Sum256([]byte("discord:1001")))
	recipientID := tipvault.HashedIdentity(sha256.Sum256([]byte("discord:2002")))
	_, _, err = engine.Register(alice, senderID)
	require.NoError(t, err)
	_, _, err = engine.Register(bob, recipientID)
	require.NoError(t, err)
	_, _, err = engine.Register(bob, recipientID)
	require.ErrorIs(t, err, tipvault.ErrAlreadyRegistered)

	senderVault := tipvault.VaultAddress(senderID)
	recipientVault := tipvault.VaultAddress(recipientID)
	require.NoError(t, engine.Deposit(alice, senderVault, 400_000))
	_, err = engine.ApproveAllowance(alice, tipvault.AllowanceAddress(senderID), 750_000)
	require.NoError(t, err)

	res, err := engine.Tip(relayer, tipvault.TipRequest{
		SenderVault:           senderVault,
		SenderAllowance:       tipvault.AllowanceAddress(senderID),
		RecipientVault:        recipientVault,
		Amount:                150_000,
		RecipientHashedUserID: recipientID,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(750), res.FeeAmount)
	require.Equal(t, uint64(150_750), res.TotalAmount)

	balance := func(owner crypto.Address) uint64 {
		bal, err := engine.Balance(owner)
		require.NoError(t, err)
		return bal
	}
	require.Equal(t, uint64(249_250), balance(senderVault))
	require.Equal(t, uint64(150_000), balance(recipientVault))
	require.Equal(t, uint64(750), balance(tipvault.FeeVaultAddress()))
	require.Equal(t, uint64(600_000), balance(alice))

	allowance, err := engine.Allowance(senderID)
	require.NoError(t, err)
	require.Equal(t, uint64(599_250), allowance.Remaining)

	// Over-allowance tip leaves every balance untouched.
	_, err = engine.Tip(relayer, tipvault.TipRequest{
		SenderVault:           senderVault,
		SenderAllowance:       tipvault.AllowanceAddress(senderID),
		RecipientVault:        recipientVault,
		Amount:                599_000,
		RecipientHashedUserID: recipientID,
	})
	require.ErrorIs(t, err, tipvault.ErrInsufficientAllowance)
	require.Equal(t, uint64(249_250), balance(senderVault))

	require.NoError(t, engine.WithdrawFee(authority, treasury, 750))
	require.Zero(t, balance(tipvault.FeeVaultAddress()))
	require.Equal(t, uint64(750), balance(treasury))

	require.Len(t, rec.OfType(events.TypeDeposit), 1)
	require.Len(t, rec.OfType(events.TypeTip), 1)
	require.Len(t, rec.OfType(events.TypeFeeWithdrawn), 1)
}

func TestReplayGuardPersistsReceipts(t *testing.T) {
	mgr, engine, _ := newLedger(t, storage.NewMemDB())
	engine.SetTipReplayGuard(true)
	engine.SetNowFunc(func() int64 { return 42 })
	authority, relayer, mint := addr("authority"), addr("relayer"), addr("mint")
	_, err := engine.InitializeConfig(authority, tipvault.InitializeConfigArgs{Relayer: relayer, TokenMint: mint})
	require.NoError(t, err)

	a := tipvault.HashedIdentity(sha256.Sum256([]byte("a")))
	b := tipvault.HashedIdentity(sha256.Sum256([]byte("b")))
	_, _, err = engine.Register(addr("alice"), a)
	require.NoError(t, err)
	_, _, err = engine.Register(addr("bob"), b)
	require.NoError(t, err)
	_, err = engine.ApproveAllowance(addr("alice"), tipvault.AllowanceAddress(a), 100)
	require.NoError(t, err)

	req := tipvault.TipRequest{
		SenderVault:           tipvault.VaultAddress(a),
		SenderAllowance:       tipvault.AllowanceAddress(a),
		RecipientVault:        tipvault.VaultAddress(b),
		Amount:                1,
		TipID:                 tipvault.TipID(sha256.Sum256([]byte("tip"))),
		RecipientHashedUserID: b,
	}
	// Unfunded vault fails before the receipt is written.
	_, err = engine.Tip(relayer, req)
	require.ErrorIs(t, err, tipvault.ErrInsufficientVaultBalance)

	_, err = mgr.ApplyBootstrapBalances(mint, []GenesisBalance{{Owner: addr("alice"), Amount: 10}})
	require.NoError(t, err)
	require.NoError(t, engine.Deposit(addr("alice"), tipvault.VaultAddress(a), 10))

	_, err = engine.Tip(relayer, req)
	require.NoError(t, err)
	_, err = engine.Tip(relayer, req)
	require.ErrorIs(t, err, tipvault.ErrDuplicateTip)

	require.NoError(t, mgr.View(func(tx *Tx) error {
		receipt, ok, err := tx.TipReceiptGet(tipvault.TipReceiptAddress(req.TipID))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, int64(42), receipt.ExecutedAt)
		require.Equal(t, uint64(1), receipt.Amount)
		return nil
	}))
}
