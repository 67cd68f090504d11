// Package janitor periodically removes uploaded images that no message references.
package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/teamchat/internal/logger"
	"github.com/teamchat/internal/metrics"
	"github.com/teamchat/internal/model"
)

const DefaultCron = "0 3 * * *"

// Objects is the upload backend: local fileserver or S3.
type Objects interface {
	List(ctx context.Context) ([]model.StoredObject, error)
	Delete(ctx context.Context, ref string) error
}

// References answers whether any message still points at an upload.
type References interface {
	ImageReferenced(ctx context.Context, ref string) (bool, error)
}

type Janitor struct {
	objects Objects
	refs    References
	cron    string
	grace   time.Duration
	now     func() time.Time
}

// New validates the cron expression. An empty expression means DefaultCron.
// Objects younger than grace are never removed: the client may not have sent the message yet.
func New(objects Objects, refs References, cronExpr string, grace time.Duration) (*Janitor, error) {
	if cronExpr == "" {
		cronExpr = DefaultCron
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("janitor: invalid cron expression %q", cronExpr)
	}
	return &Janitor{objects: objects, refs: refs, cron: cronExpr, grace: grace, now: time.Now}, nil
}

// RunOnce sweeps all stored objects and returns how many were deleted.
// A failure on one object is logged and the sweep continues.
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	defer logger.DeferLogDuration("janitor.RunOnce", time.Now())()
	objs, err := j.objects.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("janitor list: %w", err)
	}
	cutoff := j.now().Add(-j.grace)
	deleted := 0
	for _, o := range objs {
		if ctx.Err() != nil {
			return deleted, ctx.Err()
		}
		if o.CreatedAt.After(cutoff) {
			continue
		}
		used, err := j.refs.ImageReferenced(ctx, o.Ref)
		if err != nil {
			logger.Errorf("janitor: check %s: %v", o.Ref, err)
			continue
		}
		if used {
			continue
		}
		if err := j.objects.Delete(ctx, o.Ref); err != nil {
			logger.Errorf("janitor: delete %s: %v", o.Ref, err)
			continue
		}
		deleted++
	}
	metrics.JanitorDeleted(deleted)
	return deleted, nil
}

// Run sleeps until each cron tick and sweeps. Blocks until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	logger.Infof("janitor: scheduled %q, grace %v", j.cron, j.grace)
	for {
		next, err := gronx.NextTickAfter(j.cron, j.now().UTC(), false)
		if err != nil {
			logger.Errorf("janitor: next tick for %q: %v", j.cron, err)
			select {
			case <-time.After(30 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("janitor: stopped")
			return
		case <-timer.C:
		}
		n, err := j.RunOnce(ctx)
		if err != nil {
			logger.Errorf("janitor: run: %v", err)
			continue
		}
		logger.Infof("janitor: removed %d unreferenced uploads", n)
	}
}
