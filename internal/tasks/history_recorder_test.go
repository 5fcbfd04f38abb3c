package tasks

import (
	"context"
	"sync"
	"testing"
	"time"

	"adsb2mqtt/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepository is a simple mock implementation of database.SightingRepository
type mockRepository struct {
	mu        sync.Mutex
	sightings []*models.Sighting
	batches   int
	errors    []error
}

func (m *mockRepository) InsertBatch(sightings []*models.Sighting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sightings = append(m.sightings, sightings...)
	m.batches++
	if len(m.errors) > 0 {
		err := m.errors[0]
		m.errors = m.errors[1:]
		return err
	}
	return nil
}

func (m *mockRepository) CountSince(time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sightings), nil
}

func (m *mockRepository) count() int {
	n, _ := m.CountSince(time.Time{})
	return n
}

// mockSink fails every publish when err is set
type mockSink struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockSink) Publish(context.Context, models.Flight, float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.err
}

func testFlight(icao string) models.Flight {
	return models.Flight{
		ICAO:        icao,
		Altitude:    "35000",
		Direction:   "090",
		Latitude:    "40.0",
		Longitude:   "-73.0",
		LogDateTime: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewHistoryRecorder(t *testing.T) {
	recorder := NewHistoryRecorder(&mockSink{}, &mockRepository{})

	require.NotNil(t, recorder)
	assert.Equal(t, 100, recorder.batchSize)
	assert.Equal(t, 5*time.Second, recorder.flushInterval)
}

func TestHistoryRecorder_BatchFlush(t *testing.T) {
	repo := &mockRepository{}
	recorder := NewHistoryRecorderWithConfig(&mockSink{}, repo, 5, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = recorder.Start(ctx)
	}()

	for i := 0; i < 5; i++ {
		require.NoError(t, recorder.Publish(ctx, testFlight("A1B2C3"), 1.5))
	}

	assert.Eventually(t, func() bool { return repo.count() == 5 }, time.Second, 10*time.Millisecond)

	repo.mu.Lock()
	s := repo.sightings[0]
	repo.mu.Unlock()
	assert.Equal(t, "A1B2C3", s.ICAO)
	assert.Equal(t, "A1B2C3", s.Callsign)
	assert.Equal(t, 35000.0, s.Altitude)
	assert.Equal(t, 1.5, s.DistanceNM)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), s.ObservedAt)
}

func TestHistoryRecorder_TimeoutFlush(t *testing.T) {
	repo := &mockRepository{}
	recorder := NewHistoryRecorderWithConfig(&mockSink{}, repo, 100, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = recorder.Start(ctx)
	}()

	require.NoError(t, recorder.Publish(ctx, testFlight("A1B2C3"), 1))

	assert.Eventually(t, func() bool { return repo.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestHistoryRecorder_FailedPublishNotRecorded(t *testing.T) {
	repo := &mockRepository{}
	sink := &mockSink{err: assert.AnError}
	recorder := NewHistoryRecorderWithConfig(sink, repo, 1, time.Hour)

	err := recorder.Publish(context.Background(), testFlight("A1B2C3"), 1)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, recorder.sightings)
}

func TestHistoryRecorder_ContextCancellation(t *testing.T) {
	repo := &mockRepository{}
	recorder := NewHistoryRecorderWithConfig(&mockSink{}, repo, 10, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = recorder.Start(ctx)
		close(done)
	}()

	require.NoError(t, recorder.Publish(ctx, testFlight("A1B2C3"), 1))
	assert.Eventually(t, func() bool { return len(recorder.sightings) == 0 }, time.Second, 10*time.Millisecond)

	cancel()

	select {
	case <-done:
		// Pending batch is flushed on the way out
		assert.Equal(t, 1, repo.count())
	case <-time.After(2 * time.Second):
		t.Fatal("Recorder did not exit after context cancellation")
	}
}

func TestHistoryRecorder_InsertError(t *testing.T) {
	repo := &mockRepository{errors: []error{assert.AnError}}
	recorder := NewHistoryRecorderWithConfig(&mockSink{}, repo, 1, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = recorder.Start(ctx)
	}()

	require.NoError(t, recorder.Publish(ctx, testFlight("A1B2C3"), 1))
	require.NoError(t, recorder.Publish(ctx, testFlight("D4E5F6"), 1))

	// Recorder keeps running after a failed batch
	assert.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.batches == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHistoryRecorder_StopWritesQueuedSightings(t *testing.T) {
	repo := &mockRepository{}
	recorder := NewHistoryRecorderWithConfig(&mockSink{}, repo, 10, time.Hour)

	// Queued by a publish tick that finished after shutdown began
	for _, icao := range []string{"A1B2C3", "D4E5F6", "ABCDEF"} {
		require.NoError(t, recorder.Publish(context.Background(), testFlight(icao), 1))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, recorder.Start(ctx), context.Canceled)
	assert.Equal(t, 3, repo.count())
}
