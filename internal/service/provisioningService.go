package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"

	"github.com/juju/errors"

	"github.com/supby/nodeconf/internal/db"
	"github.com/supby/nodeconf/internal/logger"
	"github.com/supby/nodeconf/internal/record"
)

var ErrRecordExists = stderrors.New("record already exists")

// Provision is one device entry of a provisioning batch.
type Provision struct {
	DeviceID   string
	Fields     map[record.FieldName]string
	BrokerPort *uint16
	Confirmed  bool
}

type ImportReport struct {
	Imported []string
	Failed   map[string]error
}

// ProvisioningService applies record operations against the store.
// Every read-modify-write runs under one lock so a record has one owner at a time.
type ProvisioningService struct {
	db     db.RecordDB
	logger logger.Logger
	mutex  sync.Mutex
}

func NewProvisioningService(recordDB db.RecordDB, l logger.Logger) *ProvisioningService {
	return &ProvisioningService{
		db:     recordDB,
		logger: l.WithPrefix("[Provisioning]"),
	}
}

func (s *ProvisioningService) Create(ctx context.Context, deviceID string) (*record.Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	r, err := s.db.UpdateRecord(ctx, deviceID, func(current *record.Record) (*record.Record, error) {
		if current != nil {
			return nil, fmt.Errorf("%w: %v", ErrRecordExists, deviceID)
		}
		return record.NewLatest(), nil
	})
	if err != nil {
		return nil, errors.Annotatef(err, "creating %v", deviceID)
	}

	s.logger.Info("Created record for %v", deviceID)

	return r, nil
}

// Get returns the record of deviceID in the latest schema.
func (s *ProvisioningService) Get(ctx context.Context, deviceID string) (*record.Record, error) {
	r, err := s.db.GetRecord(ctx, deviceID)
	if err != nil {
		return nil, errors.Annotatef(err, "reading %v", deviceID)
	}

	r, err = upgrade(r)
	if err != nil {
		return nil, errors.Annotatef(err, "upgrading %v", deviceID)
	}

	return r, nil
}

func (s *ProvisioningService) List(ctx context.Context) ([]db.StoredRecord, error) {
	records, err := s.db.GetRecords(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "listing records")
	}

	for i := range records {
		r, err := upgrade(records[i].Record)
		if err != nil {
			return nil, errors.Annotatef(err, "upgrading %v", records[i].DeviceID)
		}
		records[i].Record = r
	}

	return records, nil
}

// SetField creates the record of an unknown device before assigning.
func (s *ProvisioningService) SetField(ctx context.Context, deviceID string, field record.FieldName, value string) (*record.Record, error) {
	r, err := s.mutate(ctx, deviceID, true, func(r *record.Record) error {
		return r.SetField(field, value)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Set %v of %v", field, deviceID)

	return r, nil
}

func (s *ProvisioningService) SetBrokerPort(ctx context.Context, deviceID string, port uint16) (*record.Record, error) {
	return s.mutate(ctx, deviceID, true, func(r *record.Record) error {
		return r.SetBrokerPort(port)
	})
}

func (s *ProvisioningService) Confirm(ctx context.Context, deviceID string) (*record.Record, error) {
	r, err := s.mutate(ctx, deviceID, false, func(r *record.Record) error {
		return r.MarkConfirmed()
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Confirmed record for %v", deviceID)

	return r, nil
}

func (s *ProvisioningService) Unconfirm(ctx context.Context, deviceID string) (*record.Record, error) {
	r, err := s.mutate(ctx, deviceID, false, func(r *record.Record) error {
		r.MarkUnconfirmed()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Unconfirmed record for %v", deviceID)

	return r, nil
}

func (s *ProvisioningService) Delete(ctx context.Context, deviceID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.db.DeleteRecord(ctx, deviceID); err != nil {
		return errors.Annotatef(err, "deleting %v", deviceID)
	}

	s.logger.Info("Deleted record for %v", deviceID)

	return nil
}

// Migrate rewrites every stored record that predates the latest schema.
func (s *ProvisioningService) Migrate(ctx context.Context) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	records, err := s.db.GetRecords(ctx)
	if err != nil {
		return 0, errors.Annotate(err, "listing records")
	}

	migrated := 0
	for _, stored := range records {
		if stored.Record.Version() == record.LatestSchema {
			continue
		}

		r, err := upgrade(stored.Record)
		if err != nil {
			return migrated, errors.Annotatef(err, "upgrading %v", stored.DeviceID)
		}
		if err := s.db.SaveRecord(ctx, stored.DeviceID, r); err != nil {
			return migrated, errors.Trace(err)
		}
		migrated++
	}

	if migrated > 0 {
		s.logger.Info("Migrated %d of %d records to schema %d", migrated, len(records), record.LatestSchema)
	}

	return migrated, nil
}

// Export returns every value of a confirmed record, secrets included.
func (s *ProvisioningService) Export(ctx context.Context, deviceID string) (record.View, error) {
	r, err := s.Get(ctx, deviceID)
	if err != nil {
		return record.View{}, err
	}

	v, err := r.ExportView()
	if err != nil {
		return record.View{}, errors.Annotatef(err, "exporting %v", deviceID)
	}

	return v, nil
}

// Import applies each provision in its own transaction.
// A provision with any rejected value leaves its stored record untouched.
func (s *ProvisioningService) Import(ctx context.Context, provisions []Provision) ImportReport {
	report := ImportReport{Failed: make(map[string]error)}

	for _, p := range provisions {
		_, err := s.mutate(ctx, p.DeviceID, true, func(r *record.Record) error {
			return applyProvision(r, p)
		})
		if err != nil {
			s.logger.Warn("Import of %v rejected: %v", p.DeviceID, err)
			report.Failed[p.DeviceID] = err
			continue
		}

		report.Imported = append(report.Imported, p.DeviceID)
	}

	s.logger.Info("Imported %d records, %d rejected", len(report.Imported), len(report.Failed))

	return report
}

func applyProvision(r *record.Record, p Provision) error {
	fields := make([]string, 0, len(p.Fields))
	for f := range p.Fields {
		fields = append(fields, string(f))
	}
	sort.Strings(fields)

	for _, f := range fields {
		if err := r.SetField(record.FieldName(f), p.Fields[record.FieldName(f)]); err != nil {
			return err
		}
	}

	if p.BrokerPort != nil {
		if err := r.SetBrokerPort(*p.BrokerPort); err != nil {
			return err
		}
	}

	if p.Confirmed {
		return r.MarkConfirmed()
	}
	r.MarkUnconfirmed()

	return nil
}

func (s *ProvisioningService) mutate(
	ctx context.Context,
	deviceID string,
	create bool,
	fn func(r *record.Record) error) (*record.Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	r, err := s.db.UpdateRecord(ctx, deviceID, func(current *record.Record) (*record.Record, error) {
		if current == nil {
			if !create {
				return nil, fmt.Errorf("%w: %v", db.ErrRecordNotFound, deviceID)
			}
			current = record.NewLatest()
		}

		updated, err := upgrade(current)
		if err != nil {
			return nil, err
		}

		if err := fn(updated); err != nil {
			return nil, err
		}

		return updated, nil
	})
	if err != nil {
		return nil, errors.Annotatef(err, "updating %v", deviceID)
	}

	return r, nil
}

// upgrade always returns a copy the caller may modify.
func upgrade(r *record.Record) (*record.Record, error) {
	if r.Version() == record.LatestSchema {
		return r.Clone(), nil
	}

	return r.Upgrade(record.LatestSchema)
}
