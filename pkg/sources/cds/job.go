package cds

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrJobFailed is returned when the data store does not complete a job
	ErrJobFailed = errors.New("retrieve job did not complete")
	// ErrNoResult is returned when a completed job carries no download link
	ErrNoResult = errors.New("retrieve job has no result")
)

const (
	statusSuccessful = "successful"
	statusFailed     = "failed"
	statusRejected   = "rejected"
	statusDismissed  = "dismissed"
)

type job struct {
	JobID  string `json:"jobID"`
	Status string `json:"status"`
}

type jobResults struct {
	Asset struct {
		Value struct {
			Href string `json:"href"`
		} `json:"value"`
	} `json:"asset"`
}

// retrieve submits a job for collection and waits for it, returning the
// download link of the result
func (s *Source) retrieve(ctx context.Context, collection string, inputs map[string]any) (string, error) {
	submit := fmt.Sprintf("%s/retrieve/v1/processes/%s/execution", s.cfg.URL, url.PathEscape(collection))

	var j job
	if err := s.client.PostJSON(ctx, submit, map[string]any{"inputs": inputs}, &j); err != nil {
		return "", err
	}

	if j.JobID == "" {
		return "", fmt.Errorf("%w: submission returned no job id", ErrJobFailed)
	}

	log := s.log.WithFields(logrus.Fields{
		"job_id":  j.JobID,
		"dataset": collection,
	})
	log.Info("Submitted retrieve job")

	status := fmt.Sprintf("%s/retrieve/v1/jobs/%s", s.cfg.URL, url.PathEscape(j.JobID))

	for j.Status != statusSuccessful {
		switch j.Status {
		case statusFailed, statusRejected, statusDismissed:
			return "", fmt.Errorf("%w: job %s is %s", ErrJobFailed, j.JobID, j.Status)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.cfg.PollInterval):
		}

		if err := s.client.GetJSON(ctx, status, &j); err != nil {
			return "", err
		}

		log.WithField("status", j.Status).Debug("Polled retrieve job")
	}

	var res jobResults
	if err := s.client.GetJSON(ctx, status+"/results", &res); err != nil {
		return "", err
	}

	if res.Asset.Value.Href == "" {
		return "", fmt.Errorf("%w: job %s", ErrNoResult, j.JobID)
	}

	return res.Asset.Value.Href, nil
}
