package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/nats-io/nats.go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"tipledger/core/events"
	"tipledger/core/types"
)

const defaultQueryLimit = 100

// Open connects to the archive database. driver is "sqlite" or "postgres".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	return db, nil
}

// Indexer archives bus events into SQL so history survives the
// at-most-once live stream.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New migrates the schema and returns an indexer bound to db.
func New(db *gorm.DB, logger *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Indexer{db: db, logger: logger}, nil
}

// Record stores evt unless an event with the same fingerprint exists. It
// reports whether a row was inserted.
func (ix *Indexer) Record(ctx context.Context, evt *types.Event) (bool, error) {
	if evt == nil {
		return false, nil
	}
	rec, err := recordFromEvent(evt)
	if err != nil {
		return false, err
	}
	res := ix.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "fingerprint"}}, DoNothing: true}).
		Create(&rec)
	if res.Error != nil {
		return false, fmt.Errorf("indexer: insert %s: %w", evt.Type, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func recordFromEvent(evt *types.Event) (EventRecord, error) {
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return EventRecord{}, fmt.Errorf("indexer: encode attributes: %w", err)
	}
	rec := EventRecord{
		Fingerprint: Fingerprint(evt),
		EventID:     evt.ID,
		Type:        evt.Type,
		Attributes:  string(attrs),
		EmittedAt:   evt.EmittedAt,
	}
	switch evt.Type {
	case events.TypeTip:
		rec.Vault = evt.Attributes["senderVault"]
		rec.Counterparty = evt.Attributes["recipientVault"]
	case events.TypeFeeWithdrawn:
		rec.Vault = evt.Attributes["feeVault"]
		rec.Counterparty = evt.Attributes["destination"]
	case events.TypeWithdraw:
		rec.Vault = evt.Attributes["vault"]
		rec.Counterparty = evt.Attributes["destination"]
	default:
		rec.Vault = evt.Attributes["vault"]
	}
	if raw, ok := evt.Attributes["amount"]; ok {
		amount, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return EventRecord{}, fmt.Errorf("indexer: amount %q: %w", raw, err)
		}
		rec.Amount = amount
	}
	return rec, nil
}

// Run consumes sub until ctx is cancelled or the subscription closes. Write
// failures are logged and skipped.
func (ix *Indexer) Run(ctx context.Context, sub *events.Subscription) {
	defer sub.Cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.C:
			if !ok {
				return
			}
			if _, err := ix.Record(ctx, evt); err != nil {
				ix.logger.Error("index event failed", slog.String("type", evt.Type), slog.Any("error", err))
			}
		}
	}
}

// ConsumeNATS archives events published under prefix on conn until ctx is
// cancelled. Events already archived are skipped by fingerprint, so several
// publishers or a redelivery after reconnect do not duplicate rows.
func (ix *Indexer) ConsumeNATS(ctx context.Context, conn *nats.Conn, prefix string) error {
	sub, err := events.SubscribeNATS(conn, prefix, func(evt *types.Event) {
		if _, err := ix.Record(ctx, evt); err != nil {
			ix.logger.Error("index event failed", slog.String("type", evt.Type), slog.Any("error", err))
		}
	})
	if err != nil {
		return fmt.Errorf("indexer: subscribe nats: %w", err)
	}
	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("indexer: unsubscribe nats: %w", err)
	}
	return nil
}

// TipsByVault lists tips sent from or received by vault, oldest first.
func (ix *Indexer) TipsByVault(ctx context.Context, vault string, limit int) ([]EventRecord, error) {
	var rows []EventRecord
	err := ix.db.WithContext(ctx).
		Where("type = ? AND (vault = ? OR counterparty = ?)", events.TypeTip, vault, vault).
		Order("id asc").
		Limit(normalizeLimit(limit)).
		Find(&rows).Error
	return rows, err
}

// DepositsByVault lists deposits into vault, oldest first.
func (ix *Indexer) DepositsByVault(ctx context.Context, vault string, limit int) ([]EventRecord, error) {
	var rows []EventRecord
	err := ix.db.WithContext(ctx).
		Where("type = ? AND vault = ?", events.TypeDeposit, vault).
		Order("id asc").
		Limit(normalizeLimit(limit)).
		Find(&rows).Error
	return rows, err
}

// Count reports the number of archived events of eventType, or of every type
// when eventType is empty.
func (ix *Indexer) Count(ctx context.Context, eventType string) (int64, error) {
	var n int64
	q := ix.db.WithContext(ctx).Model(&EventRecord{})
	if eventType != "" {
		q = q.Where("type = ?", eventType)
	}
	err := q.Count(&n).Error
	return n, err
}

// Close releases the underlying connection pool.
func (ix *Indexer) Close() error {
	sqlDB, err := ix.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 10*defaultQueryLimit {
		return defaultQueryLimit
	}
	return limit
}

// Decoded returns the stored attribute map.
func (r EventRecord) Decoded() (map[string]string, error) {
	out := make(map[string]string)
	if r.Attributes == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &out); err != nil {
		return nil, err
	}
	return out, nil
}
