package db

import (
	"bytes"
	"context"
	"errors"
	"testing"

	jujuerrors "github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supby/nodeconf/internal/logger"
	"github.com/supby/nodeconf/internal/record"
)

func openTestDB(t *testing.T) RecordDB {
	db, err := NewRecordDB(t.TempDir(), RecordDBOptions{
		Logger: logger.New(&bytes.Buffer{}, "[DB]", logger.LogLevelError),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(context.Background()) })

	return db
}

func testRecord(t *testing.T, broker string) *record.Record {
	r := record.NewLatest()
	require.NoError(t, r.SetField(record.FieldBroker, broker))
	require.NoError(t, r.SetField(record.FieldWifiSsid, "ap"))

	return r
}

func TestRecordDB(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	rec1 := testRecord(t, "broker1")
	rec2 := testRecord(t, "broker2")
	require.NoError(t, rec2.MarkConfirmed())

	err := db.SaveRecord(ctx, "node-1", rec1)
	assert.NoError(t, err)

	err = db.SaveRecord(ctx, "node-2", rec2)
	assert.NoError(t, err)

	records, err := db.GetRecords(ctx)
	assert.NoError(t, err)

	require.Equal(t, 2, len(records))
	assert.Equal(t, "node-1", records[0].DeviceID)
	assert.Equal(t, "node-2", records[1].DeviceID)
	assert.False(t, records[0].Record.IsConfirmed())
	assert.True(t, records[1].Record.IsConfirmed())

	err = db.DeleteRecord(ctx, "node-1")
	assert.NoError(t, err)

	records, err = db.GetRecords(ctx)
	assert.NoError(t, err)

	assert.Equal(t, 1, len(records))
}

func TestGetRecord(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveRecord(ctx, "node-1", testRecord(t, "broker1")))
	require.NoError(t, db.SaveRecord(ctx, "node-2", testRecord(t, "broker2")))

	r, err := db.GetRecord(ctx, "node-2")
	require.NoError(t, err)

	broker, _ := r.GetField(record.FieldBroker)
	assert.Equal(t, "broker2", broker)
}

func TestGetRecordNotExist(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.GetRecord(ctx, "node-1")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	assert.Equal(t, ErrRecordNotFound, jujuerrors.Cause(err))
	assert.Contains(t, err.Error(), "node-1")

	err = db.DeleteRecord(ctx, "node-1")
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.Equal(t, ErrRecordNotFound, jujuerrors.Cause(err))
}

func TestStoredSchemaIsPreserved(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	r, err := record.New(record.SchemaV2)
	require.NoError(t, err)
	require.NoError(t, r.SetField(record.FieldIoUser, "io"))
	require.NoError(t, db.SaveRecord(ctx, "old-node", r))

	got, err := db.GetRecord(ctx, "old-node")
	require.NoError(t, err)
	assert.Equal(t, record.SchemaV2, got.Version())
}

func TestUpdateRecord(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	created, err := db.UpdateRecord(ctx, "node-1", func(current *record.Record) (*record.Record, error) {
		assert.Nil(t, current)
		return testRecord(t, "first"), nil
	})
	require.NoError(t, err)
	broker, _ := created.GetField(record.FieldBroker)
	assert.Equal(t, "first", broker)

	_, err = db.UpdateRecord(ctx, "node-1", func(current *record.Record) (*record.Record, error) {
		require.NotNil(t, current)
		updated := current.Clone()
		if err := updated.SetField(record.FieldBroker, "second"); err != nil {
			return nil, err
		}
		return updated, nil
	})
	require.NoError(t, err)

	failure := errors.New("abort")
	_, err = db.UpdateRecord(ctx, "node-1", func(current *record.Record) (*record.Record, error) {
		return nil, failure
	})
	assert.ErrorIs(t, err, failure)

	unchanged, err := db.UpdateRecord(ctx, "node-1", func(current *record.Record) (*record.Record, error) {
		return nil, nil
	})
	require.NoError(t, err)
	broker, _ = unchanged.GetField(record.FieldBroker)
	assert.Equal(t, "second", broker)
}

func TestInvalidDeviceID(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"", "a/b", "node+", "node#", ReservedDeviceID} {
		err := db.SaveRecord(ctx, id, record.NewLatest())
		assert.ErrorIs(t, err, ErrInvalidDeviceID, id)
	}
}

func TestCancelledContext(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := db.GetRecords(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInMemoryRecordDB(t *testing.T) {
	db, err := NewRecordDB("", RecordDBOptions{
		InMemory:          true,
		GCPeriodInSeconds: 1,
		Logger:            logger.New(&bytes.Buffer{}, "[DB]", logger.LogLevelError),
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, db.SaveRecord(ctx, "node-1", testRecord(t, "mem")))
	records, err := db.GetRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	assert.NoError(t, db.Close(ctx))
}

func TestReopenKeepsRecords(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	options := RecordDBOptions{Logger: logger.New(&bytes.Buffer{}, "[DB]", logger.LogLevelError)}

	db, err := NewRecordDB(dir, options)
	require.NoError(t, err)
	require.NoError(t, db.SaveRecord(ctx, "node-1", testRecord(t, "persisted")))
	require.NoError(t, db.Close(ctx))

	db, err = NewRecordDB(dir, options)
	require.NoError(t, err)
	defer db.Close(ctx)

	r, err := db.GetRecord(ctx, "node-1")
	require.NoError(t, err)
	broker, _ := r.GetField(record.FieldBroker)
	assert.Equal(t, "persisted", broker)
}
