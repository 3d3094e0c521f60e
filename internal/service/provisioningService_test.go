package service

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supby/nodeconf/internal/db"
	"github.com/supby/nodeconf/internal/logger"
	"github.com/supby/nodeconf/internal/record"
)

func newTestService(t *testing.T) (*ProvisioningService, db.RecordDB) {
	l := logger.New(&bytes.Buffer{}, "[test]", logger.LogLevelError)

	recordDB, err := db.NewRecordDB("", db.RecordDBOptions{InMemory: true, Logger: l})
	require.NoError(t, err)
	t.Cleanup(func() { recordDB.Close(context.Background()) })

	return NewProvisioningService(recordDB, l), recordDB
}

func TestSetFieldCreatesRecord(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	r, err := svc.SetField(ctx, "node-1", record.FieldBroker, "mqtt.example.com")
	require.NoError(t, err)
	assert.Equal(t, record.LatestSchema, r.Version())
	assert.False(t, r.IsConfirmed())

	got, err := svc.Get(ctx, "node-1")
	require.NoError(t, err)
	broker, _ := got.GetField(record.FieldBroker)
	assert.Equal(t, "mqtt.example.com", broker)
}

func TestSetFieldTooLongLeavesStoredRecord(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetField(ctx, "node-1", record.FieldWifiSsid, "home")
	require.NoError(t, err)

	_, err = svc.SetField(ctx, "node-1", record.FieldWifiSsid, strings.Repeat("a", 71))
	assert.ErrorIs(t, errors.Cause(err), record.ErrFieldTooLong)
	assert.Equal(t, CodeFieldTooLong, ErrorCode(err))
	assert.Equal(t, record.FieldWifiSsid, FieldOf(err))

	got, err := svc.Get(ctx, "node-1")
	require.NoError(t, err)
	ssid, _ := got.GetField(record.FieldWifiSsid)
	assert.Equal(t, "home", ssid)
}

func TestConfirmFlow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Confirm(ctx, "node-1")
	assert.Equal(t, CodeRecordNotFound, ErrorCode(err))

	_, err = svc.SetField(ctx, "node-1", record.FieldWifiPass, "secret")
	require.NoError(t, err)

	_, err = svc.Export(ctx, "node-1")
	assert.Equal(t, CodeUnconfirmedRecordUsed, ErrorCode(err))

	r, err := svc.Confirm(ctx, "node-1")
	require.NoError(t, err)
	assert.True(t, r.IsConfirmed())

	r, err = svc.SetField(ctx, "node-1", record.FieldWifiSsid, "ap")
	require.NoError(t, err)
	assert.True(t, r.IsConfirmed())

	v, err := svc.Export(ctx, "node-1")
	require.NoError(t, err)
	assert.Equal(t, "secret", v.Fields[record.FieldWifiPass])

	r, err = svc.Unconfirm(ctx, "node-1")
	require.NoError(t, err)
	assert.False(t, r.IsConfirmed())
}

func TestCreateAndDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "node-1")
	require.NoError(t, err)

	_, err = svc.Create(ctx, "node-1")
	assert.Equal(t, CodeRecordExists, ErrorCode(err))

	require.NoError(t, svc.Delete(ctx, "node-1"))

	_, err = svc.Get(ctx, "node-1")
	assert.ErrorIs(t, errors.Cause(err), db.ErrRecordNotFound)

	err = svc.Delete(ctx, "node-1")
	assert.Equal(t, CodeRecordNotFound, ErrorCode(err))
}

func TestOldSchemaIsUpgradedOnRead(t *testing.T) {
	svc, recordDB := newTestService(t)
	ctx := context.Background()

	old, err := record.New(record.SchemaV1)
	require.NoError(t, err)
	require.NoError(t, old.SetBrokerPort(1884))
	require.NoError(t, recordDB.SaveRecord(ctx, "legacy", old))

	got, err := svc.Get(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, record.LatestSchema, got.Version())
	assert.Equal(t, uint16(1884), got.BrokerPort())

	_, err = svc.Confirm(ctx, "legacy")
	require.NoError(t, err)

	stored, err := recordDB.GetRecord(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, record.LatestSchema, stored.Version())
	assert.True(t, stored.IsConfirmed())
}

func TestSetBrokerPortAndList(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetBrokerPort(ctx, "b-node", 8883)
	require.NoError(t, err)
	_, err = svc.SetField(ctx, "a-node", record.FieldBroker, "x")
	require.NoError(t, err)

	records, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a-node", records[0].DeviceID)
	assert.Equal(t, uint16(8883), records[1].Record.BrokerPort())
}

func TestInvalidDeviceID(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.SetField(context.Background(), "a/b", record.FieldBroker, "x")
	assert.Equal(t, CodeInvalidDeviceID, ErrorCode(err))

	_, err = svc.SetField(context.Background(), db.ReservedDeviceID, record.FieldBroker, "x")
	assert.Equal(t, CodeInvalidDeviceID, ErrorCode(err))
}

func TestImport(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetField(ctx, "node-2", record.FieldBroker, "kept")
	require.NoError(t, err)

	port := uint16(1884)
	report := svc.Import(ctx, []Provision{
		{
			DeviceID: "node-1",
			Fields: map[record.FieldName]string{
				record.FieldBroker:        "mqtt.example.com",
				record.FieldTopicHumidity: "home/bedroom/humidity",
			},
			BrokerPort: &port,
			Confirmed:  true,
		},
		{
			DeviceID: "node-2",
			Fields: map[record.FieldName]string{
				record.FieldBroker:   "replaced",
				record.FieldWifiSsid: strings.Repeat("s", 80),
			},
		},
		{
			DeviceID: "node-3",
			Fields:   map[record.FieldName]string{"mqttUser": "x"},
		},
	})

	assert.Equal(t, []string{"node-1"}, report.Imported)
	require.Len(t, report.Failed, 2)
	assert.Equal(t, CodeFieldTooLong, ErrorCode(report.Failed["node-2"]))
	assert.Equal(t, CodeInvalidFieldName, ErrorCode(report.Failed["node-3"]))

	r, err := svc.Get(ctx, "node-1")
	require.NoError(t, err)
	assert.True(t, r.IsConfirmed())
	endpoint, err := r.Broker()
	require.NoError(t, err)
	assert.Equal(t, record.BrokerEndpoint{Address: "mqtt.example.com", Port: 1884, Topic: "home/bedroom/humidity"}, endpoint)

	r, err = svc.Get(ctx, "node-2")
	require.NoError(t, err)
	broker, _ := r.GetField(record.FieldBroker)
	assert.Equal(t, "kept", broker)

	_, err = svc.Get(ctx, "node-3")
	assert.Equal(t, CodeRecordNotFound, ErrorCode(err))
}

func TestErrorCodeInternal(t *testing.T) {
	assert.Equal(t, CodeInternal, ErrorCode(errors.New("boom")))
	assert.Equal(t, record.FieldName(""), FieldOf(errors.New("boom")))
}

func TestMigrate(t *testing.T) {
	svc, recordDB := newTestService(t)
	ctx := context.Background()

	legacy, err := record.New(record.SchemaV2)
	require.NoError(t, err)
	require.NoError(t, legacy.SetField(record.FieldIoUser, "user"))
	require.NoError(t, legacy.MarkConfirmed())
	require.NoError(t, recordDB.SaveRecord(ctx, "legacy", legacy))

	_, err = svc.SetField(ctx, "current", record.FieldBroker, "x")
	require.NoError(t, err)

	migrated, err := svc.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, migrated)

	stored, err := recordDB.GetRecord(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, record.LatestSchema, stored.Version())
	assert.True(t, stored.IsConfirmed())
	user, _ := stored.GetField(record.FieldIoUser)
	assert.Equal(t, "user", user)

	migrated, err = svc.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, migrated)
}
