package tui

import (
	"context"
	"fmt"
	"time"
)

const PageSize = 10

type JobStatus string

const (
	StatusQueued        JobStatus = "queued"
	StatusRunning       JobStatus = "running"
	StatusStopping      JobStatus = "stopping"
	StatusSuccess       JobStatus = "success"
	StatusFailed        JobStatus = "failed"
	StatusNotAuthorised JobStatus = "notauthorised"
)

// IsTerminal is true for anything that is not queued or running.
func (s JobStatus) IsTerminal() bool {
	return s != StatusQueued && s != StatusRunning
}

// Pager tracks the skip offset of the results list.
type Pager struct {
	Skip  int
	Total int
}

func (p Pager) Prev() Pager {
	p.Skip -= PageSize
	if p.Skip < 0 {
		p.Skip = 0
	}
	return p
}

// Next stays put once the last page is showing.
func (p Pager) Next() Pager {
	if p.Skip+PageSize < p.Total {
		p.Skip += PageSize
	}
	return p
}

func (p Pager) Page() int {
	return p.Skip/PageSize + 1
}

func (p Pager) Pages() int {
	if p.Total <= 0 {
		return 1
	}
	return (p.Total + PageSize - 1) / PageSize
}

var ResultColumns = []string{"ID", "Queue", "Status", "Image", "Submitted", "Started", "Ended", "Return Code"}

const timeLayout = "2006-01-02 15:04:05"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(timeLayout)
}

// Cells renders one results row. Ended and Return Code stay blank until the
// job has finished.
func (j JobResult) Cells() []string {
	ended, rc := "", ""
	if j.Status.IsTerminal() {
		ended = formatTime(j.Ended)
		rc = fmt.Sprint(j.ReturnCode)
	}
	return []string{
		j.ID,
		j.QName,
		string(j.Status),
		j.ContainerImage,
		formatTime(j.Submitted),
		formatTime(j.Started),
		ended,
		rc,
	}
}

type jobGetter interface {
	GetJob(ctx context.Context, apiToken, id string) (*JobResult, error)
}

// WatchJob fetches the job straight away and then every interval until it
// reaches a terminal status, ctx ends, or a fetch fails.
func WatchJob(ctx context.Context, jobs jobGetter, apiToken, id string, interval time.Duration, fn func(*JobResult)) (*JobResult, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := jobs.GetJob(ctx, apiToken, id)
		if err != nil {
			return nil, err
		}
		if fn != nil {
			fn(job)
		}
		if job.Status.IsTerminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}
