package coordinator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/afikmenashe/alert-distribution/internal/alert"
	"github.com/afikmenashe/alert-distribution/internal/events"
)

type deliveryKey struct{ alertID, recipientID string }

// FakeStore is an in-memory store that enforces the (alert, recipient) uniqueness.
type FakeStore struct {
	mu         sync.Mutex
	alerts     map[string]alert.Record
	deliveries map[deliveryKey]*alert.DeliveryStatus
	nextID     int64

	SaveAlertErr  error
	SaveStatusErr error
	ExistsErr     error
	GetAlertErr   error
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		alerts:     make(map[string]alert.Record),
		deliveries: make(map[deliveryKey]*alert.DeliveryStatus),
	}
}

func (s *FakeStore) SaveAlert(_ context.Context, rec *alert.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveAlertErr != nil {
		return false, s.SaveAlertErr
	}
	if _, ok := s.alerts[rec.ID]; ok {
		return false, nil
	}
	s.alerts[rec.ID] = *rec
	return true, nil
}

func (s *FakeStore) GetAlert(_ context.Context, id string) (*alert.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetAlertErr != nil {
		return nil, s.GetAlertErr
	}
	rec, ok := s.alerts[id]
	if !ok {
		return nil, alert.ErrNotFound
	}
	return &rec, nil
}

func (s *FakeStore) SaveDeliveryStatuses(_ context.Context, batch []alert.DeliveryStatus) ([]alert.DeliveryStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveStatusErr != nil {
		return nil, s.SaveStatusErr
	}
	var created []alert.DeliveryStatus
	for _, st := range batch {
		key := deliveryKey{st.AlertID, st.RecipientID}
		if _, ok := s.deliveries[key]; ok {
			continue
		}
		s.nextID++
		row := st
		row.ID = s.nextID
		row.CreatedAt = time.Now()
		s.deliveries[key] = &row
		created = append(created, row)
	}
	return created, nil
}

func (s *FakeStore) DeliveryExists(_ context.Context, alertID, recipientID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ExistsErr != nil {
		return false, s.ExistsErr
	}
	_, ok := s.deliveries[deliveryKey{alertID, recipientID}]
	return ok, nil
}

func (s *FakeStore) ToggleRead(_ context.Context, recipientID string, id int64, read bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.deliveries {
		if d.ID == id && d.RecipientID == recipientID {
			d.Read = read
			return nil
		}
	}
	return alert.ErrNotFound
}

func (s *FakeStore) ListDeliveriesFor(_ context.Context, recipientID string) ([]alert.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []alert.Delivery{}
	for key, d := range s.deliveries {
		if key.recipientID == recipientID {
			out = append(out, alert.Delivery{DeliveryStatus: *d, Alert: s.alerts[key.alertID]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// Rows returns every stored delivery status.
func (s *FakeStore) Rows() []alert.DeliveryStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]alert.DeliveryStatus, 0, len(s.deliveries))
	for _, d := range s.deliveries {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecipientID < out[j].RecipientID })
	return out
}

// FakeDirectory serves a fixed recipient list.
type FakeDirectory struct {
	Entries []alert.Recipient
	Err     error
}

func (d *FakeDirectory) ListRecipients(context.Context) ([]alert.Recipient, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Entries, nil
}

// FakePusher delivers to connected recipients.
type FakePusher struct {
	mu        sync.Mutex
	Connected map[string]bool
	pushed    []*alert.Delivery
}

func (p *FakePusher) Deliver(_ context.Context, d *alert.Delivery) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.Connected[d.RecipientID] {
		return false
	}
	p.pushed = append(p.pushed, d)
	return true
}

func (p *FakePusher) Pushed() []*alert.Delivery {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*alert.Delivery(nil), p.pushed...)
}

// FakePublisher records published events. Async callbacks run inline.
type FakePublisher struct {
	mu         sync.Mutex
	AsyncErr   error
	BatchErr   error
	created    []*events.AlertCreated
	userAlerts [][]*events.UserAlert
}

func (p *FakePublisher) PublishAlertCreatedAsync(e *events.AlertCreated, done func(error)) {
	p.mu.Lock()
	if p.AsyncErr == nil {
		p.created = append(p.created, e)
	}
	err := p.AsyncErr
	p.mu.Unlock()
	if done != nil {
		done(err)
	}
}

func (p *FakePublisher) PublishUserAlerts(_ context.Context, batch []*events.UserAlert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.BatchErr != nil {
		return p.BatchErr
	}
	p.userAlerts = append(p.userAlerts, batch)
	return nil
}

func (p *FakePublisher) Created() []*events.AlertCreated {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*events.AlertCreated(nil), p.created...)
}

func (p *FakePublisher) UserAlerts() [][]*events.UserAlert {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]*events.UserAlert(nil), p.userAlerts...)
}

// FakeFallback records fallback notifications.
type FakeFallback struct {
	mu       sync.Mutex
	notified []*alert.Delivery
}

func (f *FakeFallback) NotifyAsync(d *alert.Delivery) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, d)
	return true
}

func (f *FakeFallback) Notified() []*alert.Delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*alert.Delivery(nil), f.notified...)
}
