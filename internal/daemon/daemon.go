package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"adsb2mqtt/internal/aircraftdb"
	"adsb2mqtt/internal/basestation"
	"adsb2mqtt/internal/config"
	"adsb2mqtt/internal/database"
	"adsb2mqtt/internal/engine"
	"adsb2mqtt/internal/geo"
	"adsb2mqtt/internal/mqtt"
	"adsb2mqtt/internal/scheduler"
	"adsb2mqtt/internal/store"
	"adsb2mqtt/internal/tasks"

	"golang.org/x/sync/errgroup"
)

// csvLoadBatchSize is large so the initial aircraft table load finishes quickly
const csvLoadBatchSize = 5000

// Daemon owns every long-running part of the bridge
type Daemon struct {
	client    *basestation.Client
	engine    *engine.Engine
	scheduler *scheduler.Scheduler
	recorder  *tasks.HistoryRecorder
	sightings database.SightingRepository
	publisher *mqtt.Publisher
	databases map[string]*database.DB
}

// New connects to the MQTT broker and assembles the daemon from cfg
func New(ctx context.Context, cfg *config.Config) (*Daemon, error) {
	publisher, err := mqtt.Connect(ctx, mqtt.Config{
		Server:         cfg.MQTT.Server,
		Port:           cfg.MQTT.Port,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		UseTLS:         cfg.MQTT.UseTLS,
		ClientID:       cfg.MQTT.ClientID,
		TopicBase:      cfg.MQTT.TopicBase,
		PublishTimeout: cfg.MQTT.PublishTimeout,
	})
	if err != nil {
		return nil, err
	}

	d, err := build(cfg, publisher, publisher.Connected)
	if err != nil {
		publisher.Close()
		return nil, err
	}
	d.publisher = publisher
	return d, nil
}

// build assembles everything downstream of the publish sink. ready gates publishing; nil means always.
func build(cfg *config.Config, sink engine.Sink, ready func() bool) (*Daemon, error) {
	d := &Daemon{databases: make(map[string]*database.DB)}

	filter, err := geo.NewRangeFilter(cfg.Location.Latitude, cfg.Location.Longitude, cfg.Location.RadiusNM)
	if err != nil {
		return nil, err
	}
	slog.Info("Publishing flights in range",
		"latitude", cfg.Location.Latitude,
		"longitude", cfg.Location.Longitude,
		"radius_nm", filter.RadiusNM(),
	)
	loc, err := cfg.TimeLocation()
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}

	resolver, err := d.resolvers(cfg.AircraftDB)
	if err != nil {
		d.Close()
		return nil, err
	}

	if cfg.History.Enabled {
		db, err := d.open(cfg.History.DBPath)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.sightings = db.SightingRepository()
		d.recorder = tasks.NewHistoryRecorderWithConfig(sink, d.sightings, cfg.History.BatchSize, cfg.History.FlushInterval)
		sink = d.recorder
	}

	var typeResolver store.TypeResolver
	if len(resolver) > 0 {
		typeResolver = resolver
	}

	d.engine, err = engine.New(engine.Config{
		Store:     store.New(typeResolver, cfg.Engine.FlightTTL),
		Filter:    filter,
		Sink:      sink,
		Location:  loc,
		SinkReady: ready,
	})
	if err != nil {
		d.Close()
		return nil, err
	}

	d.scheduler = scheduler.New(
		tasks.NewPublishTask(d.engine, cfg.Engine.PublishInterval),
		tasks.NewEvictTask(d.engine, cfg.Engine.EvictInterval),
	)
	d.client = basestation.NewClient(cfg.BaseStation.Addr, cfg.BaseStation.TLS)

	return d, nil
}

// resolvers builds the aircraft type lookup chain: the JSON db first, then SQLite
func (d *Daemon) resolvers(cfg config.AircraftDBConfig) (aircraftdb.Chain, error) {
	var chain aircraftdb.Chain

	if cfg.Path != "" {
		jsonDB, err := aircraftdb.NewJSONDB(cfg.Path)
		if err != nil {
			return nil, err
		}
		chain = append(chain, jsonDB)
	}

	if cfg.SQLitePath != "" {
		db, err := d.open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		repo := db.AircraftRepository()

		populated, err := repo.IsTablePopulated()
		if err != nil {
			return nil, fmt.Errorf("failed to check aircraft table: %w", err)
		}
		if !populated && len(cfg.CSVPaths) > 0 {
			slog.Info("Aircraft table is empty, loading from CSV files", "csv_paths", cfg.CSVPaths)
			if err := repo.LoadFromMultipleCSV(cfg.CSVPaths, csvLoadBatchSize); err != nil {
				return nil, fmt.Errorf("failed to load aircraft from CSV: %w", err)
			}
			slog.Info("Successfully loaded aircraft database from CSV")
		}
		chain = append(chain, repo)
	}

	return chain, nil
}

// open returns the database at path, sharing one connection per file
func (d *Daemon) open(path string) (*database.DB, error) {
	if db, ok := d.databases[path]; ok {
		return db, nil
	}
	db, err := database.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database %s: %w", path, err)
	}
	d.databases[path] = db
	return db, nil
}

// Run ingests the feed and runs the periodic tasks until ctx is cancelled.
// Cancellation is a clean stop and returns nil.
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("Starting daemon")
	started := time.Now().UTC()

	// The recorder outlives the publish task so sightings queued by its last tick are written
	recorderCtx, stopRecorder := context.WithCancel(context.Background())
	defer stopRecorder()
	recorderDone := make(chan struct{})
	if d.recorder != nil {
		go func() {
			defer close(recorderDone)
			_ = d.recorder.Start(recorderCtx)
		}()
	} else {
		close(recorderDone)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return d.client.Run(ctx, d.engine.Ingest)
	})
	eg.Go(func() error {
		return d.scheduler.Run(ctx)
	})

	err := eg.Wait()
	stopRecorder()
	<-recorderDone

	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if d.sightings != nil {
		if n, countErr := d.sightings.CountSince(started); countErr != nil {
			slog.Error("Failed to count recorded sightings", "error", countErr)
		} else {
			slog.Info("Recorded sightings", "count", n)
		}
	}
	slog.Info("Daemon stopped")
	return err
}

// Close releases the broker session and databases. Call it after Run returns.
func (d *Daemon) Close() error {
	var errs []error
	if d.publisher != nil {
		errs = append(errs, d.publisher.Close())
	}
	for path, db := range d.databases {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing database %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}
