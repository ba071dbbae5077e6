package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
)

var testLogger = logger.New(io.Discard, "test", logger.LevelError)

// scriptedReader returns the queued results in order, then blocks until ctx is done
type scriptedReader struct {
	mu      sync.Mutex
	results []readResult
	closed  bool
}

type readResult struct {
	msg kafka.Message
	err error
}

func (r *scriptedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.results) > 0 {
		next := r.results[0]
		r.results = r.results[1:]
		r.mu.Unlock()
		return next.msg, next.err
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *scriptedReader) Close() error {
	r.closed = true
	return nil
}

type recordingUpdater struct {
	mu      sync.Mutex
	samples []models.LocationSample
	sources []string
	err     error
	done    chan struct{}
	want    int
}

func (u *recordingUpdater) UpdateLocation(_ context.Context, s models.LocationSample, source string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.samples = append(u.samples, s)
	u.sources = append(u.sources, source)
	if len(u.samples) == u.want {
		close(u.done)
	}
	return u.err
}

func value(s string) readResult {
	return readResult{msg: kafka.Message{Value: []byte(s)}}
}

func TestDecodeLocation(t *testing.T) {
	m, err := decodeLocation([]byte(`{"driver_id":7,"lat":43.2,"lon":76.9,"speed":12.5,"heading":90,"recorded_at":"2024-05-01T10:00:00Z"}`))
	require.NoError(t, err)

	s := m.Sample()
	assert.Equal(t, int64(7), s.DriverID)
	assert.Equal(t, models.Point{Lat: 43.2, Lon: 76.9}, s.Point)
	require.NotNil(t, s.Speed)
	assert.Equal(t, 12.5, *s.Speed)
	require.NotNil(t, s.Heading)
	assert.Equal(t, 90, *s.Heading)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), s.RecordedAt)

	_, err = decodeLocation([]byte(`{"lat":1,"lon":2}`))
	assert.ErrorIs(t, err, ErrMissingDriver)
	_, err = decodeLocation([]byte(`{`))
	assert.Error(t, err)
}

func TestLocationMessageRoundTrip(t *testing.T) {
	speed := 3.0
	s := models.LocationSample{DriverID: 2, Point: models.Point{Lat: 1, Lon: 2}, Speed: &speed}
	assert.Equal(t, s, NewLocationMessage(s).Sample())
	assert.Equal(t, []byte("2"), messageKey(2))
}

func TestLocationConsumer_SkipsBadMessagesAndRecoversFromReadErrors(t *testing.T) {
	reader := &scriptedReader{results: []readResult{
		value(`{"driver_id":1,"lat":10,"lon":20}`),
		value(`garbage`),
		{err: errors.New("broker unavailable")},
		value(`{"driver_id":2,"lat":11,"lon":21}`),
	}}
	updater := &recordingUpdater{done: make(chan struct{}), want: 2}
	c := newLocationConsumer(reader, updater, "kafka", testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	select {
	case <-updater.done:
	case <-time.After(5 * time.Second):
		t.Fatal("samples were not consumed")
	}
	cancel()
	require.NoError(t, <-errCh)

	updater.mu.Lock()
	defer updater.mu.Unlock()
	require.Len(t, updater.samples, 2)
	assert.Equal(t, int64(1), updater.samples[0].DriverID)
	assert.Equal(t, int64(2), updater.samples[1].DriverID)
	assert.Equal(t, []string{"kafka", "kafka"}, updater.sources)
}

func TestRejected(t *testing.T) {
	assert.True(t, rejected(types.ErrInvalidCoordinates))
	assert.True(t, rejected(types.ErrDriverNotFound))
	assert.False(t, rejected(types.ErrDatabaseFailed))
}

func TestLocationConsumer_Close(t *testing.T) {
	reader := &scriptedReader{}
	require.NoError(t, newLocationConsumer(reader, &recordingUpdater{}, "kafka", testLogger).Close())
	assert.True(t, reader.closed)
}
