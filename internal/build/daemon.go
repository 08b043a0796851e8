package build

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/waterinstitute/metget/internal/database"
	"github.com/waterinstitute/metget/internal/log"
)

const (
	// maxRequestAge expires requests that have sat unfinished too long.
	maxRequestAge = 48 * time.Hour

	// restoreHold keeps a restore-state request out of the queue between
	// Glacier polls.
	restoreHold = 10 * time.Minute

	// pollInterval bounds how long the daemon sleeps without a
	// notification before checking the queue anyway.
	pollInterval = 10 * time.Second

	// notifyChannel is the postgres channel the API side notifies when it
	// enqueues a request.
	notifyChannel = "metget_requests"

	maxTries = 3
)

// Daemon drains the request queue.
type Daemon struct {
	requests *database.RequestStore
	handler  *Handler
	connInfo string
}

// NewDaemon wires the queue worker.
func NewDaemon(requests *database.RequestStore, handler *Handler, connInfo string) *Daemon {
	return &Daemon{requests: requests, handler: handler, connInfo: connInfo}
}

// Run processes requests until the context is canceled. A LISTEN/NOTIFY
// subscription wakes the loop immediately on new work; a ticker covers
// notifications lost across connection drops.
func (d *Daemon) Run(ctx context.Context) error {
	listener := pq.NewListener(d.connInfo, 10*time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Warnf("queue listener event %d: %v", ev, err)
			}
		})
	defer listener.Close()
	if err := listener.Listen(notifyChannel); err != nil {
		return fmt.Errorf("listening on %s: %w", notifyChannel, err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	log.Infof("build daemon started, watching channel %s", notifyChannel)
	for {
		d.drain(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-listener.Notify:
		case <-ticker.C:
		}
	}
}

// drain runs queued requests until the queue is empty.
func (d *Daemon) drain(ctx context.Context) {
	d.expireOld()
	for {
		if ctx.Err() != nil {
			return
		}
		req, err := d.requests.NextQueued(restoreHold)
		if err != nil {
			log.Errorf("polling queue: %v", err)
			return
		}
		if req == nil {
			return
		}
		d.runOne(ctx, req)
	}
}

// expireOld fails requests that have been in flight longer than the
// maximum age.
func (d *Daemon) expireOld() {
	expired, err := d.requests.Expired(maxRequestAge)
	if err != nil {
		log.Errorf("scanning for expired requests: %v", err)
		return
	}
	for _, r := range expired {
		log.Warnf("request %s expired after %s", r.RequestID, maxRequestAge)
		msg := fmt.Sprintf(`{"error": "request exceeded the maximum age of %s"}`, maxRequestAge)
		if err := d.requests.Update(r.RequestID, database.RequestError, msg, false, 0); err != nil {
			log.Errorf("expiring request %s: %v", r.RequestID, err)
		}
	}
}

// runOne executes a single request, recording the resulting status.
func (d *Daemon) runOne(ctx context.Context, row *database.Request) {
	log.Infof("starting request %s (try %d)", row.RequestID, row.Try+1)

	req, err := ParseRequest([]byte(row.InputData))
	if err != nil {
		d.fail(row.RequestID, err)
		return
	}

	if err := d.requests.Update(row.RequestID, database.RequestRunning, "", true, 0); err != nil {
		log.Errorf("marking request %s running: %v", row.RequestID, err)
		return
	}

	res, err := d.handler.Process(ctx, req)
	switch {
	case errors.Is(err, ErrRestoreWait):
		log.Infof("request %s is waiting on glacier restores", row.RequestID)
		// Waiting on a restore does not consume a try.
		if err := d.requests.Update(row.RequestID, database.RequestRestore, "", false, 0); err != nil {
			log.Errorf("parking request %s for restore: %v", row.RequestID, err)
		}
	case err != nil:
		if row.Try+1 < maxTries {
			log.Warnf("request %s failed, requeueing: %v", row.RequestID, err)
			if uerr := d.requests.Update(row.RequestID, database.RequestQueued, "", false, 0); uerr != nil {
				log.Errorf("requeueing request %s: %v", row.RequestID, uerr)
			}
			return
		}
		d.fail(row.RequestID, err)
	default:
		credit := req.CreditUsage(res.RawFileCount)
		log.Infof("request %s completed, %d credits", row.RequestID, credit)
		if err := d.requests.Update(row.RequestID, database.RequestCompleted, "", false, credit); err != nil {
			log.Errorf("completing request %s: %v", row.RequestID, err)
		}
	}
}

func (d *Daemon) fail(requestID string, cause error) {
	log.Errorf("request %s failed: %v", requestID, cause)
	msg := fmt.Sprintf(`{"error": %q}`, cause.Error())
	if err := d.requests.Update(requestID, database.RequestError, msg, false, 0); err != nil {
		log.Errorf("recording failure for request %s: %v", requestID, err)
	}
}
