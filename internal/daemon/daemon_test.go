package daemon

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"adsb2mqtt/internal/config"
	"adsb2mqtt/internal/database"
	"adsb2mqtt/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feed = "MSG,1,1,1,A1B2C3,1,2024/01/01,12:00:00.000,2024/01/01,12:00:00.000,DAL42,,,,,\n" +
	"MSG,3,1,1,A1B2C3,1,2024/01/01,12:00:01.000,2024/01/01,12:00:01.000,,35000,,090,40.01,-73.0\n" +
	"MSG,3,1,1,FAR001,1,2024/01/01,12:00:01.000,2024/01/01,12:00:01.000,,10000,,180,45.0,-73.0\n"

type recordingSink struct {
	mu      sync.Mutex
	flights []models.Flight
}

func (s *recordingSink) Publish(_ context.Context, f models.Flight, _ float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flights = append(s.flights, f)
	return nil
}

func (s *recordingSink) published() []models.Flight {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Flight(nil), s.flights...)
}

// startFeed serves feed to every connection and then closes it
func startFeed(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				_, _ = conn.Write([]byte(feed))
			}()
		}
	}()
	return ln.Addr().String()
}

func testConfig(addr string) *config.Config {
	return &config.Config{
		BaseStation: config.BaseStationConfig{Addr: addr},
		Location: config.LocationConfig{
			Latitude:  40.0,
			Longitude: -73.0,
			RadiusNM:  10,
			Timezone:  "UTC",
		},
		History: config.HistoryConfig{
			BatchSize:     10,
			FlushInterval: time.Hour,
		},
		Engine: config.EngineConfig{
			PublishInterval: 20 * time.Millisecond,
			EvictInterval:   time.Hour,
			FlightTTL:       300 * time.Second,
		},
	}
}

func writeAircraftCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aircraft.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"'icao24','registration','manufacturerIcao','manufacturerName','model','typecode','icaoAircraftClass','operator','operatorCallsign','owner'\n"+
			"'a1b2c3','N123AB','BOEING','Boeing','737-800','B738','L2J','','',''\n"), 0o644))
	return path
}

func runDaemon(t *testing.T, d *Daemon) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	return func() error {
		stop()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("daemon did not stop after context cancellation")
			return nil
		}
	}
}

func TestDaemon_PublishesInRangeFlights(t *testing.T) {
	cfg := testConfig(startFeed(t))
	cfg.AircraftDB = config.AircraftDBConfig{
		SQLitePath: filepath.Join(t.TempDir(), "aircraft.db"),
		CSVPaths:   []string{writeAircraftCSV(t)},
	}
	sink := &recordingSink{}

	d, err := build(cfg, sink, nil)
	require.NoError(t, err)
	defer d.Close()

	stop := runDaemon(t, d)
	assert.Eventually(t, func() bool { return len(sink.published()) > 0 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	for _, f := range sink.published() {
		assert.Equal(t, "A1B2C3", f.ICAO, "out of range flight is never published")
		assert.Equal(t, "DAL42", f.Callsign())
		assert.Equal(t, "B738", f.AircraftType)
	}
}

func TestDaemon_RecordsHistory(t *testing.T) {
	cfg := testConfig(startFeed(t))
	dbPath := filepath.Join(t.TempDir(), "history.db")
	cfg.History.Enabled = true
	cfg.History.DBPath = dbPath
	cfg.History.FlushInterval = 20 * time.Millisecond

	d, err := build(cfg, &recordingSink{}, nil)
	require.NoError(t, err)
	repo := d.databases[dbPath].SightingRepository()

	stop := runDaemon(t, d)
	assert.Eventually(t, func() bool {
		n, err := repo.CountSince(time.Time{})
		return err == nil && n > 0
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())
	require.NoError(t, d.Close())

	db, err := database.New(dbPath)
	require.NoError(t, err)
	defer db.Close()

	n, err := db.SightingRepository().CountSince(time.Time{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}

func TestBuild_SharesDatabaseFile(t *testing.T) {
	cfg := testConfig("127.0.0.1:1")
	path := filepath.Join(t.TempDir(), "adsb2mqtt.db")
	cfg.AircraftDB.SQLitePath = path
	cfg.History.Enabled = true
	cfg.History.DBPath = path

	d, err := build(cfg, &recordingSink{}, nil)
	require.NoError(t, err)
	defer d.Close()

	assert.Len(t, d.databases, 1)
	assert.NotNil(t, d.recorder)
}

func TestBuild_MissingJSONDB(t *testing.T) {
	cfg := testConfig("127.0.0.1:1")
	cfg.AircraftDB.Path = filepath.Join(t.TempDir(), "missing")

	_, err := build(cfg, &recordingSink{}, nil)
	assert.Error(t, err)
}

func TestBuild_InvalidLocation(t *testing.T) {
	cfg := testConfig("127.0.0.1:1")
	cfg.Location.RadiusNM = 0

	_, err := build(cfg, &recordingSink{}, nil)
	assert.Error(t, err)
}

func TestDaemon_HoldsFlightsWhileBrokerDown(t *testing.T) {
	cfg := testConfig(startFeed(t))
	cfg.History.Enabled = true
	cfg.History.DBPath = filepath.Join(t.TempDir(), "history.db")
	sink := &recordingSink{}
	var up atomic.Bool

	d, err := build(cfg, sink, up.Load)
	require.NoError(t, err)
	defer d.Close()

	stop := runDaemon(t, d)
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, sink.published(), "nothing is published while the broker is down")

	up.Store(true)
	assert.Eventually(t, func() bool { return len(sink.published()) > 0 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	n, err := d.sightings.CountSince(time.Time{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1, "sightings queued before shutdown are written")
}
