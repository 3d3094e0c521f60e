package db

import (
	"context"
	"errors"

	"github.com/supby/nodeconf/internal/logger"
	"github.com/supby/nodeconf/internal/record"
)

var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrInvalidDeviceID = errors.New("invalid device id")
)

type StoredRecord struct {
	DeviceID string
	Record   *record.Record
}

type RecordDBOptions struct {
	InMemory          bool
	ValueLogFileSize  int64
	GCPeriodInSeconds int
	Logger            logger.Logger
}

// RecordDB keeps one configuration record per device.
type RecordDB interface {
	GetRecords(ctx context.Context) ([]StoredRecord, error)
	GetRecord(ctx context.Context, deviceID string) (*record.Record, error)
	SaveRecord(ctx context.Context, deviceID string, r *record.Record) error
	// UpdateRecord runs fn in one transaction. fn gets nil for unknown devices;
	// returning nil from fn leaves the store unchanged.
	UpdateRecord(ctx context.Context, deviceID string, fn func(current *record.Record) (*record.Record, error)) (*record.Record, error)
	DeleteRecord(ctx context.Context, deviceID string) error
	Close(ctx context.Context) error
}
