package worker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kacperjurak/goedxcore/pkg/models"
)

func receive(t *testing.T, results <-chan models.WorkResult) models.WorkResult {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("no result")
	}
	return models.WorkResult{}
}

func TestPool_ProcessesJobs(t *testing.T) {
	pool := New(Options{
		Workers: 3,
		Processor: func(req models.RefineRequest) (models.RefineResponse, error) {
			return models.RefineResponse{ID: req.ID}, nil
		},
	})
	defer pool.Shutdown()

	results := make(chan models.WorkResult, 10)
	for i := 0; i < 10; i++ {
		item := models.WorkItem{ID: i, RequestID: "r", Iteration: i, Request: models.RefineRequest{ID: "r"}}
		require.NoError(t, pool.SubmitJob(item, results))
	}

	seen := make(map[int]bool)
	for i := 0; i < 10; i++ {
		r := receive(t, results)
		assert.True(t, r.Success())
		assert.Equal(t, "r", r.Response.ID)
		seen[r.Iteration] = true
	}
	assert.Len(t, seen, 10)
}

func TestPool_RecoversPanics(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	pool := New(Options{
		Workers: 1,
		Processor: func(models.RefineRequest) (models.RefineResponse, error) {
			panic("boom")
		},
		Logger: zap.New(core),
	})
	defer pool.Shutdown()

	results := make(chan models.WorkResult, 1)
	require.NoError(t, pool.SubmitJob(models.WorkItem{RequestID: "p"}, results))

	r := receive(t, results)
	assert.False(t, r.Success())
	assert.ErrorContains(t, r.Err, "boom")
	assert.Equal(t, 1, logs.FilterMessage("spectrum refinement failed").Len())

	// the worker survives
	require.NoError(t, pool.SubmitJob(models.WorkItem{RequestID: "q"}, results))
	assert.Equal(t, "q", receive(t, results).RequestID)
}

func TestPool_Webhooks(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sent := make(chan models.WebhookItem, 2)
	pool := New(Options{
		Workers: 1,
		Webhook: func(item models.WebhookItem) error {
			sent <- item
			if item.RequestID == "bad" {
				return errors.New("unreachable")
			}
			return nil
		},
		Logger: zap.New(core),
	})
	defer pool.Shutdown()

	pool.QueueWebhook(models.WebhookItem{RequestID: "ok"})
	pool.QueueWebhook(models.WebhookItem{RequestID: "bad"})

	ids := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case item := <-sent:
			ids[item.RequestID] = true
		case <-time.After(5 * time.Second):
			t.Fatal("webhook not delivered")
		}
	}
	assert.True(t, ids["ok"] && ids["bad"])
	assert.Eventually(t, func() bool {
		return logs.FilterMessage("webhook delivery failed").Len() == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	pool := New(Options{Workers: 1})
	pool.Shutdown()
	pool.Shutdown()

	err := pool.SubmitJob(models.WorkItem{}, make(chan models.WorkResult, 1))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPool_ShutdownAnswersQueuedJobs(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	pool := New(Options{
		Workers:   1,
		QueueSize: 4,
		Processor: func(req models.RefineRequest) (models.RefineResponse, error) {
			if req.ID == "first" {
				close(started)
				<-release
			}
			return models.RefineResponse{ID: req.ID}, nil
		},
	})

	results := make(chan models.WorkResult, 3)
	require.NoError(t, pool.SubmitJob(models.WorkItem{RequestID: "first", Request: models.RefineRequest{ID: "first"}}, results))
	<-started
	require.NoError(t, pool.SubmitJob(models.WorkItem{RequestID: "second", Iteration: 1}, results))
	require.NoError(t, pool.SubmitJob(models.WorkItem{RequestID: "third", Iteration: 2}, results))

	done := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(done)
	}()
	<-pool.shutdown
	close(release)

	byID := map[string]models.WorkResult{}
	for i := 0; i < 3; i++ {
		r := receive(t, results)
		byID[r.RequestID] = r
	}
	assert.True(t, byID["first"].Success())
	assert.ErrorIs(t, byID["second"].Err, ErrClosed)
	assert.ErrorIs(t, byID["third"].Err, ErrClosed)
	assert.Equal(t, 2, byID["third"].Iteration)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not return")
	}
}
