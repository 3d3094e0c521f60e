package db

import (
	"context"
	"strings"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/juju/errors"

	"github.com/supby/nodeconf/internal/logger"
	"github.com/supby/nodeconf/internal/record"
)

const (
	keyPrefix         = "record/"
	maxDeviceIDLength = 128

	// ReservedDeviceID is the MQTT topic level of gateway commands.
	ReservedDeviceID = "gateway"
)

func NewRecordDB(dirname string, options RecordDBOptions) (RecordDB, error) {
	log := options.Logger
	if log == nil {
		log = logger.GetLogger("[DB]", logger.LogLevelInfo)
	}

	opt := badger.DefaultOptions(dirname)
	if options.InMemory {
		opt = badger.DefaultOptions("").WithInMemory(true)
	}
	if options.ValueLogFileSize > 0 {
		opt.ValueLogFileSize = options.ValueLogFileSize
	}
	opt.Logger = &badgerLogger{logger: log}

	db, err := badger.Open(opt)
	if err != nil {
		return nil, errors.Annotate(err, "failed to open badger db")
	}

	ret := &recordDB{
		db:     db,
		logger: log,
		done:   make(chan struct{}),
	}

	if !options.InMemory && options.GCPeriodInSeconds > 0 {
		ret.wg.Add(1)
		go ret.runGC(time.Duration(options.GCPeriodInSeconds) * time.Second)
	}

	return ret, nil
}

type recordDB struct {
	db     *badger.DB
	logger logger.Logger
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func ValidateDeviceID(deviceID string) error {
	if deviceID == "" || len(deviceID) > maxDeviceIDLength || strings.ContainsAny(deviceID, "/+#\x00") {
		return errors.Annotatef(ErrInvalidDeviceID, "%q", deviceID)
	}
	if deviceID == ReservedDeviceID {
		return errors.Annotatef(ErrInvalidDeviceID, "%q is reserved", deviceID)
	}

	return nil
}

func recordKey(deviceID string) []byte {
	return []byte(keyPrefix + deviceID)
}

func (d *recordDB) GetRecords(ctx context.Context) ([]StoredRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ret []StoredRecord
	err := d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			deviceID := strings.TrimPrefix(string(item.Key()), keyPrefix)

			err := item.Value(func(v []byte) error {
				r, err := record.Unmarshal(v)
				if err != nil {
					return errors.Annotatef(err, "device %v", deviceID)
				}

				ret = append(ret, StoredRecord{
					DeviceID: deviceID,
					Record:   r,
				})

				return nil
			})

			if err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		return nil, errors.Trace(err)
	}

	return ret, nil
}

func (d *recordDB) GetRecord(ctx context.Context, deviceID string) (*record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}

	var ret *record.Record
	err := d.db.View(func(txn *badger.Txn) error {
		var err error
		ret, err = getRecord(txn, deviceID)

		return err
	})

	if err != nil {
		return nil, err
	}

	return ret, nil
}

func (d *recordDB) SaveRecord(ctx context.Context, deviceID string, r *record.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateDeviceID(deviceID); err != nil {
		return err
	}

	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(deviceID), record.Marshal(r))
	})

	return errors.Annotatef(err, "saving %v", deviceID)
}

func (d *recordDB) UpdateRecord(
	ctx context.Context,
	deviceID string,
	fn func(current *record.Record) (*record.Record, error)) (*record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}

	var ret *record.Record
	err := d.db.Update(func(txn *badger.Txn) error {
		current, err := getRecord(txn, deviceID)
		if err != nil && !errors.Is(err, ErrRecordNotFound) {
			return err
		}

		updated, err := fn(current)
		if err != nil {
			return err
		}

		ret = current
		if updated == nil {
			return nil
		}
		ret = updated

		return txn.Set(recordKey(deviceID), record.Marshal(updated))
	})

	if err != nil {
		return nil, errors.Trace(err)
	}

	return ret, nil
}

func (d *recordDB) DeleteRecord(ctx context.Context, deviceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateDeviceID(deviceID); err != nil {
		return err
	}

	err := d.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(recordKey(deviceID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return errors.Annotatef(ErrRecordNotFound, "%v", deviceID)
			}
			return err
		}

		return txn.Delete(recordKey(deviceID))
	})

	return errors.Trace(err)
}

func (d *recordDB) Close(ctx context.Context) error {
	d.once.Do(func() { close(d.done) })
	d.wg.Wait()

	if err := d.db.Close(); err != nil {
		return errors.Annotate(err, "closing badger db")
	}

	return nil
}

func getRecord(txn *badger.Txn, deviceID string) (*record.Record, error) {
	item, err := txn.Get(recordKey(deviceID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.Annotatef(ErrRecordNotFound, "%v", deviceID)
	}
	if err != nil {
		return nil, err
	}

	var ret *record.Record
	err = item.Value(func(v []byte) error {
		ret, err = record.Unmarshal(v)
		return err
	})

	if err != nil {
		return nil, errors.Annotatef(err, "device %v", deviceID)
	}

	return ret, nil
}

func (d *recordDB) runGC(period time.Duration) {
	defer d.wg.Done()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
			for {
				err := d.db.RunValueLogGC(0.5)
				if err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						d.logger.Warn("value log GC: %v", err)
					}
					break
				}
				d.logger.Debug("value log GC rewrote a file")
			}
		}
	}
}
