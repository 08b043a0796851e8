package database

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// RequestStore provides queue operations over the requests table.
type RequestStore struct {
	db *gorm.DB
}

// NewRequestStore creates a request store on an existing connection.
func NewRequestStore(db *gorm.DB) *RequestStore {
	return &RequestStore{db: db}
}

// Update transitions a request to a new status. The try counter is only
// incremented when incrementTry is set; a Glacier restore wait does not
// consume a try.
func (r *RequestStore) Update(requestID string, status RequestStatus, message string, incrementTry bool, credit int64) error {
	updates := map[string]interface{}{
		"status":    status,
		"last_date": time.Now().UTC(),
	}
	if message != "" {
		updates["message"] = message
	}
	if incrementTry {
		updates["try"] = gorm.Expr("try + 1")
	}
	if credit > 0 {
		updates["credit_usage"] = credit
	}
	return r.db.Model(&Request{}).Where("request_id = ?", requestID).Updates(updates).Error
}

// NextQueued returns the oldest request waiting to run, or nil when the
// queue is empty. Requests parked in the restore state become eligible
// again once their last update is older than the supplied hold time.
func (r *RequestStore) NextQueued(restoreHold time.Duration) (*Request, error) {
	var req Request
	cutoff := time.Now().UTC().Add(-restoreHold)
	err := r.db.
		Where("status = ?", RequestQueued).
		Or(r.db.Where("status = ?", RequestRestore).Where("last_date < ?", cutoff)).
		Order("last_date asc").
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// Get returns a single request by its public id.
func (r *RequestStore) Get(requestID string) (*Request, error) {
	var req Request
	if err := r.db.Where("request_id = ?", requestID).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// Expired returns unfinished requests whose start date is older than maxAge.
func (r *RequestStore) Expired(maxAge time.Duration) ([]Request, error) {
	var reqs []Request
	cutoff := time.Now().UTC().Add(-maxAge)
	err := r.db.
		Where("status IN ?", []RequestStatus{RequestQueued, RequestRunning, RequestRestore}).
		Where("start_date < ?", cutoff).
		Find(&reqs).Error
	return reqs, err
}
