// Package boltstore keeps the webhook receipt log in an embedded BoltDB
// file. One record per provider event id; a second delivery of the same event
// is detected before the body is re-applied.
package boltstore

import (
	"encoding/json"
	"time"

	bolt "github.com/boltdb/bolt"
)

const receiptBucket = "webhook_receipts"

type WebhookLog struct {
	db *bolt.DB
}

type receipt struct {
	Provider   string          `json:"provider"`
	EventID    string          `json:"eventId"`
	ReceivedAt time.Time       `json:"receivedAt"`
	Body       json.RawMessage `json:"body"`
}

func Open(path string) (*WebhookLog, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(receiptBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &WebhookLog{db: db}, nil
}

func (l *WebhookLog) Close() error {
	return l.db.Close()
}

// Seen reports whether a receipt exists for the provider event id.
func (l *WebhookLog) Seen(providerName, eventID string) (bool, error) {
	key := []byte(providerName + "/" + eventID)
	var seen bool

	err := l.db.View(func(tx *bolt.Tx) error {
		seen = tx.Bucket([]byte(receiptBucket)).Get(key) != nil
		return nil
	})
	return seen, err
}

// Record stores the receipt if the provider event id was never seen.
// Returns false without writing when the key already exists, which is what
// makes a provider retry storm a cheap no-op.
func (l *WebhookLog) Record(providerName, eventID string, receivedAt time.Time, body []byte) (bool, error) {
	key := []byte(providerName + "/" + eventID)
	fresh := false

	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(receiptBucket))

		if b.Get(key) != nil {
			return nil
		}

		data, err := json.Marshal(receipt{
			Provider:   providerName,
			EventID:    eventID,
			ReceivedAt: receivedAt,
			Body:       json.RawMessage(body),
		})
		if err != nil {
			return err
		}

		fresh = true
		return b.Put(key, data)
	})
	if err != nil {
		return false, err
	}

	return fresh, nil
}
