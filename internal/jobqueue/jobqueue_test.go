package jobqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	expired   []string
	failList  bool
	failOn    string
	deleted   []string
	gotCutoff time.Time
}

func (f *fakePurger) ListExpiredClosed(_ context.Context, cutoff time.Time) ([]string, error) {
	f.gotCutoff = cutoff
	if f.failList {
		return nil, errors.New("db down")
	}
	return f.expired, nil
}

func (f *fakePurger) DeleteConversation(_ context.Context, id string) error {
	if id == f.failOn {
		return errors.New("delete failed")
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeEvictor struct {
	evicted []string
	fail    bool
}

func (f *fakeEvictor) Delete(_ context.Context, conversationID string) error {
	if f.fail {
		return errors.New("cache down")
	}
	f.evicted = append(f.evicted, conversationID)
	return nil
}

func sweepWorker(purger *fakePurger, evictor *fakeEvictor, config *QueueConfig) *RetentionSweepWorker {
	return &RetentionSweepWorker{
		purger: purger,
		cache:  evictor,
		config: config,
		logger: zerolog.Nop(),
	}
}

func TestSweepPurgesExpired(t *testing.T) {
	purger := &fakePurger{expired: []string{"c1", "c2"}}
	evictor := &fakeEvictor{}
	worker := sweepWorker(purger, evictor, DefaultQueueConfig())

	err := worker.Work(context.Background(), &river.Job[RetentionSweepArgs]{})
	require.NoError(t, err)

	assert.Equal(t, []string{"c1", "c2"}, purger.deleted)
	assert.Equal(t, []string{"c1", "c2"}, evictor.evicted)
}

func TestSweepCutoffUsesRetentionWindow(t *testing.T) {
	purger := &fakePurger{}
	worker := sweepWorker(purger, &fakeEvictor{}, QueueConfigForWindow(3))

	err := worker.Work(context.Background(), &river.Job[RetentionSweepArgs]{})
	require.NoError(t, err)

	want := time.Now().Add(-3 * 24 * time.Hour)
	assert.WithinDuration(t, want, purger.gotCutoff, 5*time.Second)
}

func TestSweepListFailureReturnsError(t *testing.T) {
	purger := &fakePurger{failList: true}
	worker := sweepWorker(purger, &fakeEvictor{}, DefaultQueueConfig())

	err := worker.Work(context.Background(), &river.Job[RetentionSweepArgs]{})
	require.Error(t, err)
}

func TestSweepContinuesPastDeleteFailure(t *testing.T) {
	purger := &fakePurger{expired: []string{"c1", "c2", "c3"}, failOn: "c2"}
	evictor := &fakeEvictor{}
	worker := sweepWorker(purger, evictor, DefaultQueueConfig())

	err := worker.Work(context.Background(), &river.Job[RetentionSweepArgs]{})
	require.NoError(t, err)

	assert.Equal(t, []string{"c1", "c3"}, purger.deleted)
	assert.Equal(t, []string{"c1", "c3"}, evictor.evicted)
}

func TestSweepCacheFailureIsNotFatal(t *testing.T) {
	purger := &fakePurger{expired: []string{"c1"}}
	worker := sweepWorker(purger, &fakeEvictor{fail: true}, DefaultQueueConfig())

	err := worker.Work(context.Background(), &river.Job[RetentionSweepArgs]{})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, purger.deleted)
}

func TestQueueConfigForWindow(t *testing.T) {
	assert.Equal(t, 7*24*time.Hour, QueueConfigForWindow(0).RetentionWindow)
	assert.Equal(t, 7*24*time.Hour, QueueConfigForWindow(-1).RetentionWindow)
	assert.Equal(t, 30*24*time.Hour, QueueConfigForWindow(30).RetentionWindow)
}
