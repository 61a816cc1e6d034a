package indexer

import (
	"bytes"
	"encoding/hex"
	"sort"
	"time"

	"lukechampine.com/blake3"

	"tipledger/core/types"
)

// EventRecord is one archived ledger event. Vault holds the primary account
// the event touched; Counterparty is set for tips (recipient vault).
type EventRecord struct {
	ID           uint   `gorm:"primaryKey"`
	Fingerprint  string `gorm:"size:64;uniqueIndex;not null"`
	EventID      string `gorm:"size:64;index"`
	Type         string `gorm:"size:64;index;not null"`
	Vault        string `gorm:"size:96;index"`
	Counterparty string `gorm:"size:96;index"`
	Amount       uint64
	Attributes   string `gorm:"type:text"`
	EmittedAt    int64  `gorm:"index"`
	CreatedAt    time.Time
}

func (EventRecord) TableName() string { return "tip_events" }

// Fingerprint hashes the envelope ID, type and sorted attributes. Redelivery
// of the same envelope (for example through NATS) yields the same value.
func Fingerprint(evt *types.Event) string {
	buf := bytes.NewBuffer(nil)
	buf.WriteString(evt.ID)
	buf.WriteByte(0)
	buf.WriteString(evt.Type)
	buf.WriteByte(0)
	keys := make([]string, 0, len(evt.Attributes))
	for k := range evt.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(evt.Attributes[k])
		buf.WriteByte(0)
	}
	sum := blake3.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}
