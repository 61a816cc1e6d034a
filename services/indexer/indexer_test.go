package indexer

import (
	"context"
	"crypto/sha256"
	"path/filepath"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/require"

	"tipledger/core/events"
	"tipledger/core/types"
	"tipledger/crypto"
)

func newTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "events.db") + "?_pragma=busy_timeout(5000)"
	db, err := Open("sqlite", dsn)
	require.NoError(t, err)
	ix, err := New(db, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func addr(label string) crypto.Address {
	return crypto.MustDeriveAddress("indexer-test", []byte(label))
}

func TestRecordIsIdempotent(t *testing.T) {
	ix := newTestIndexer(t)
	ctx := context.Background()
	evt := &types.Event{
		ID:         "evt-1",
		Type:       events.TypeDeposit,
		Attributes: map[string]string{"vault": addr("v").String(), "amount": "42"},
		EmittedAt:  1_700_000_000,
	}

	inserted, err := ix.Record(ctx, evt)
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = ix.Record(ctx, evt.Clone())
	require.NoError(t, err)
	require.False(t, inserted)

	n, err := ix.Count(ctx, "")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	rows, err := ix.DepositsByVault(ctx, addr("v").String(), 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, uint64(42), rows[0].Amount)
	require.Equal(t, int64(1_700_000_000), rows[0].EmittedAt)
}

func TestRecordRejectsMalformedAmount(t *testing.T) {
	ix := newTestIndexer(t)
	_, err := ix.Record(context.Background(), &types.Event{
		ID:         "evt-bad",
		Type:       events.TypeDeposit,
		Attributes: map[string]string{"amount": "-1"},
	})
	require.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	a := &types.Event{ID: "x", Type: "t", Attributes: map[string]string{"a": "1", "b": "2"}}
	b := &types.Event{ID: "x", Type: "t", Attributes: map[string]string{"b": "2", "a": "1"}}
	require.Equal(t, Fingerprint(a), Fingerprint(b))
	require.Len(t, Fingerprint(a), 64)

	c := a.Clone()
	c.ID = "y"
	require.NotEqual(t, Fingerprint(a), Fingerprint(c))

	d := a.Clone()
	d.Attributes["a"] = "3"
	require.NotEqual(t, Fingerprint(a), Fingerprint(d))
}

func TestRunArchivesBusEvents(t *testing.T) {
	ix := newTestIndexer(t)
	bus := events.NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	sub := bus.Subscribe(16)
	go func() {
		ix.Run(ctx, sub)
		close(done)
	}()

	sender, recipient, other := addr("sender"), addr("recipient"), addr("other")
	memo := "thanks"
	bus.Emit(events.Deposit{
		Authority:    addr("auth"),
		Vault:        sender,
		HashedUserID: sha256.Sum256([]byte("discord:1")),
		Amount:       400_000,
	})
	bus.Emit(events.Tip{
		Relayer:        addr("relayer"),
		SenderVault:    sender,
		RecipientVault: recipient,
		FeeVault:       addr("fee"),
		Amount:         150_000,
		FeeAmount:      750,
		TotalAmount:    150_750,
		FeeBps:         50,
		TipID:          sha256.Sum256([]byte("tip")),
		Memo:           &memo,
	})
	bus.Emit(events.Tip{
		SenderVault:    other,
		RecipientVault: addr("elsewhere"),
		Amount:         1,
		TotalAmount:    1,
	})

	require.Eventually(t, func() bool {
		n, err := ix.Count(context.Background(), "")
		return err == nil && n == 3
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	<-done

	tips, err := ix.TipsByVault(context.Background(), sender.String(), 10)
	require.NoError(t, err)
	require.Len(t, tips, 1)
	require.Equal(t, uint64(150_000), tips[0].Amount)
	require.Equal(t, recipient.String(), tips[0].Counterparty)
	attrs, err := tips[0].Decoded()
	require.NoError(t, err)
	require.Equal(t, "thanks", attrs["memo"])
	require.Equal(t, "750", attrs["feeAmount"])

	received, err := ix.TipsByVault(context.Background(), recipient.String(), 10)
	require.NoError(t, err)
	require.Len(t, received, 1)
	require.Equal(t, tips[0].Fingerprint, received[0].Fingerprint)

	deposits, err := ix.DepositsByVault(context.Background(), sender.String(), 10)
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	require.Equal(t, uint64(400_000), deposits[0].Amount)

	n, err := ix.Count(context.Background(), events.TypeTip)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "root@/tips")
	require.Error(t, err)
}

func TestConsumeNATSArchivesPublishedEvents(t *testing.T) {
	srv := natsserver.RunRandClientPortServer()
	defer srv.Shutdown()
	sink, err := events.ConnectNATS(events.NATSOptions{URL: srv.ClientURL()})
	require.NoError(t, err)
	defer sink.Close()

	ix := newTestIndexer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ix.ConsumeNATS(ctx, sink.Conn(), sink.Prefix()) }()
	// The subscription is registered asynchronously; retry until it is live.
	bus := events.NewBus()
	defer bus.Close()
	bus.Attach(sink)
	vault := addr("nats-vault")
	require.Eventually(t, func() bool {
		bus.Emit(events.Deposit{Vault: vault, Amount: 7})
		_ = sink.Conn().Flush()
		n, err := ix.Count(context.Background(), events.TypeDeposit)
		return err == nil && n > 0
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	rows, err := ix.DepositsByVault(context.Background(), vault.String(), 0)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	require.Equal(t, uint64(7), rows[0].Amount)
}

func TestConsumeNATSRequiresConnection(t *testing.T) {
	ix := newTestIndexer(t)
	require.Error(t, ix.ConsumeNATS(context.Background(), nil, ""))
}
