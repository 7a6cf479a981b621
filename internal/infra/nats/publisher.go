package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/shed3/investment-accountant/internal/ledger"
	"github.com/shed3/investment-accountant/pkg/logger"
)

const (
	// StreamName is the JetStream stream holding committed entry batches
	StreamName = "ACCOUNTANT_ENTRIES"

	// SubjectPrefix is followed by the record type, e.g. accountant.entries.buy
	SubjectPrefix = "accountant.entries"
)

// Batch is the message published for each committed record
type Batch struct {
	TxID        string           `json:"tx_id"`
	Type        string           `json:"type"`
	PublishedAt time.Time        `json:"published_at"`
	Entries     []map[string]any `json:"entries"`
}

// EntryPublisher publishes committed entry batches to JetStream for
// downstream consumers. Publishing happens after persistence is confirmed.
type EntryPublisher struct {
	js     jetstream.JetStream
	logger *logger.Logger
}

// NewEntryPublisher creates a publisher on js
func NewEntryPublisher(js jetstream.JetStream, log *logger.Logger) *EntryPublisher {
	if log == nil {
		log = logger.Discard()
	}
	return &EntryPublisher{js: js, logger: log.WithComponent("entry_publisher")}
}

// Connect dials url and returns the connection with its JetStream context
func Connect(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("investment-accountant"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream: %w", err)
	}
	return nc, js, nil
}

// Subject returns the subject entries of txType are published on
func Subject(txType string) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, txType)
}

// Publish sends the entries of one committed record. The message id makes
// redelivery of the same record idempotent within the stream's duplicate
// window.
func (p *EntryPublisher) Publish(ctx context.Context, txID, txType string, entries []ledger.Entry) error {
	batch := Batch{
		TxID:        txID,
		Type:        txType,
		PublishedAt: time.Now().UTC(),
		Entries:     make([]map[string]any, len(entries)),
	}
	for i, e := range entries {
		batch.Entries[i] = e.ToMap()
	}

	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	msgID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(txID)).String()
	if _, err := p.js.Publish(ctx, Subject(txType), data, jetstream.WithMsgID(msgID)); err != nil {
		return fmt.Errorf("publish %s: %w", txID, err)
	}

	p.logger.Debug("entries published", "tx_id", txID, "subject", Subject(txType), "entries", len(entries))
	return nil
}

// EnsureStream creates the entries stream if it doesn't exist
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{SubjectPrefix + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Duplicates: 2 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create entries stream: %w", err)
	}
	return nil
}
