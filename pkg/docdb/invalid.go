package docdb

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// validationErrorTTL matches §6.3's 15-day TTL on validation-errors.
const validationErrorTTL = 15 * 24 * time.Hour

// ValidationErrorDoc is the invalid-sink record written whenever a message
// is routed to the invalid sink (§7): validation, version, schema, dispatch,
// thread-id or document-size failures, including those raised while a
// handler runs. Recovered
// from the original_source collection set, which the distilled spec only
// names in passing (SPEC_FULL.md §3 [FULL]).
type ValidationErrorDoc struct {
	ID          int64     `gorm:"column:id;primaryKey"`
	SpoolID     string    `gorm:"column:spool_id;index"`
	BrokerTopic string    `gorm:"column:broker_topic"`
	ErrKind     string    `gorm:"column:err_kind"`
	ErrMsg      string    `gorm:"column:err_msg"`
	RawBody     string    `gorm:"column:raw_body"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	ExpireAt    time.Time `gorm:"column:expire_at;index"`
}

func (ValidationErrorDoc) TableName() string { return "validation_errors" }

// RawMessageDoc retains the verbatim envelope for audit/replay, mirroring
// the raw-messages collection §6.3 names.
type RawMessageDoc struct {
	ID          int64     `gorm:"column:id;primaryKey"`
	SpoolID     string    `gorm:"column:spool_id;uniqueIndex"`
	BrokerMsgID string    `gorm:"column:broker_msg_id"`
	BrokerTopic string    `gorm:"column:broker_topic"`
	Body        []byte    `gorm:"column:body;type:jsonb"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (RawMessageDoc) TableName() string { return "raw_messages" }

// InvalidSink writes to the validation-errors and raw-messages tables.
type InvalidSink struct {
	db *gorm.DB
}

// NewInvalidSink wraps db for invalid-sink writes.
func NewInvalidSink(db *gorm.DB) *InvalidSink {
	return &InvalidSink{db: db}
}

// RecordValidationError persists a ValidationErrorDoc with the standard
// 15-day TTL.
func (s *InvalidSink) RecordValidationError(ctx context.Context, spoolID, brokerTopic, errKind, errMsg, rawBody string) error {
	now := time.Now().UTC()
	doc := ValidationErrorDoc{
		SpoolID:     spoolID,
		BrokerTopic: brokerTopic,
		ErrKind:     errKind,
		ErrMsg:      errMsg,
		RawBody:     rawBody,
		CreatedAt:   now,
		ExpireAt:    now.Add(validationErrorTTL),
	}
	return s.db.WithContext(ctx).Create(&doc).Error
}

// RecordRawMessage persists the verbatim envelope body.
func (s *InvalidSink) RecordRawMessage(ctx context.Context, spoolID, brokerMsgID, brokerTopic string, body []byte) error {
	doc := RawMessageDoc{
		SpoolID:     spoolID,
		BrokerMsgID: brokerMsgID,
		BrokerTopic: brokerTopic,
		Body:        body,
		CreatedAt:   time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Create(&doc).Error
}

// SweepExpiredValidationErrors deletes validation_errors rows past their
// TTL. Postgres has no native TTL index, so this Go-native periodic sweep
// (run from cmd/loader's maintenance ticker) is the equivalent.
func (s *InvalidSink) SweepExpiredValidationErrors(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expire_at < ?", time.Now().UTC()).
		Delete(&ValidationErrorDoc{})
	return res.RowsAffected, res.Error
}
