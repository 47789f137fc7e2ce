package storage

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeGateway is a scriptable Gateway for decorator tests.
type fakeGateway struct {
	mu           sync.Mutex
	readingErr   error
	wateringErr  error
	nextID       ReadingID
	readingCalls int
	wateringIDs  []ReadingID
}

func (f *fakeGateway) SaveSensorValues(_ context.Context, _, _, _ float64) (ReadingID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readingCalls++
	if f.readingErr != nil {
		return "", f.readingErr
	}
	return f.nextID, nil
}

func (f *fakeGateway) SaveWatering(_ context.Context, id ReadingID, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wateringIDs = append(f.wateringIDs, id)
	return f.wateringErr
}

func (f *fakeGateway) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readingCalls, len(f.wateringIDs)
}

// recordingLogger counts warnings.
type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	infos []string
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) Info(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}

// recordingObserver captures notifications.
type recordingObserver struct {
	err       error
	readings  []ReadingID
	waterings []int64
	at        []time.Time
}

func (r *recordingObserver) Name() string { return "recording" }

func (r *recordingObserver) ReadingSaved(_ context.Context, id ReadingID, _, _, _ float64, at time.Time) error {
	r.readings = append(r.readings, id)
	r.at = append(r.at, at)
	return r.err
}

func (r *recordingObserver) WateringSaved(_ context.Context, _ ReadingID, ms int64, _ time.Time) error {
	r.waterings = append(r.waterings, ms)
	return r.err
}

var errBackend = errors.New("disk I/O error")
