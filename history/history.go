// Package history records zone and partition changes in InfluxDB.
package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	envisalink "github.com/caarlos0/homekit-envisalink"
	"github.com/caarlos0/homekit-envisalink/entities"
	logp "github.com/charmbracelet/log"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

var log = logp.NewWithOptions(os.Stderr, logp.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "history",
})

// SetLogLevel sets the level of the package logger.
func SetLogLevel(level logp.Level) {
	log.SetLevel(level)
}

var (
	ErrDisabled         = errors.New("influxdb: disabled")
	ErrConnectionFailed = errors.New("influxdb: connection failed")
)

const (
	defaultPingTimeout   = 10 * time.Second
	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second

	MeasurementZone      = "zone"
	MeasurementPartition = "partition"
	MeasurementPanel     = "panel"
)

type Options struct {
	URL           string
	Token         string
	Org           string
	Bucket        string
	BatchSize     uint
	FlushInterval time.Duration
}

// Source is where the recorder reads the current state from.
type Source interface {
	Connected() bool
	Zone(n int) (envisalink.Zone, bool)
	Partition(n int) (envisalink.Partition, bool)
}

type pointWriter interface {
	WritePoint(point *write.Point)
}

// Recorder writes a point for every update it handles. Writes are batched
// and never block.
type Recorder struct {
	client influxdb2.Client
	writer pointWriter
	flush  func()
	source Source
	data   entities.Data
	now    func() time.Time
}

// Connect creates a recorder backed by InfluxDB, making sure the server is
// reachable first.
func Connect(ctx context.Context, opts Options, source Source, data entities.Data) (*Recorder, error) {
	if opts.URL == "" {
		return nil, ErrDisabled
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}

	client := influxdb2.NewClientWithOptions(
		opts.URL,
		opts.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(opts.BatchSize).
			SetFlushInterval(uint(opts.FlushInterval.Milliseconds())),
	)

	ctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(opts.Org, opts.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			log.Error("could not write points", "err", err)
		}
	}()

	log.Info("recording history", "url", opts.URL, "bucket", opts.Bucket)
	return &Recorder{
		client: client,
		writer: writeAPI,
		flush:  writeAPI.Flush,
		source: source,
		data:   data,
		now:    time.Now,
	}, nil
}

// Handle writes the current state of whatever the update is about.
func (r *Recorder) Handle(u envisalink.Update) {
	now := r.now()
	switch u.Kind {
	case envisalink.UpdateZone, envisalink.UpdateZoneBypass:
		zone, ok := r.source.Zone(u.Number)
		if !ok {
			return
		}
		info, _ := entities.FindZoneInfo(u.Number, r.data.Zones)
		r.writer.WritePoint(ZonePoint(zone, info.Name, now))
	case envisalink.UpdatePartition:
		part, ok := r.source.Partition(u.Number)
		if !ok {
			return
		}
		info, _ := entities.FindPartitionInfo(u.Number, r.data.Partitions)
		r.writer.WritePoint(PartitionPoint(part, info.Name, now))
	case envisalink.UpdateConnection:
		r.writer.WritePoint(write.NewPoint(
			MeasurementPanel,
			nil,
			map[string]interface{}{"connected": r.source.Connected()},
			now,
		))
	}
}

// Close flushes pending points and closes the client.
func (r *Recorder) Close() {
	if r.client == nil {
		return
	}
	r.flush()
	r.client.Close()
}

func ZonePoint(zone envisalink.Zone, name string, t time.Time) *write.Point {
	return write.NewPoint(
		MeasurementZone,
		tags(zone.Number, name, "zone"),
		map[string]interface{}{
			"open":       zone.Status.Open,
			"fault":      zone.Status.Fault,
			"alarm":      zone.Status.Alarm,
			"tamper":     zone.Status.Tamper,
			"bypassed":   zone.Bypassed,
			"last_fault": zone.LastFault,
		},
		t,
	)
}

func PartitionPoint(part envisalink.Partition, name string, t time.Time) *write.Point {
	return write.NewPoint(
		MeasurementPartition,
		tags(part.Number, name, "partition"),
		map[string]interface{}{
			"ready": part.Status.Ready,
			"armed": part.Status.Armed(),
			"alarm": part.Status.Alarm,
			"alpha": part.Status.Alpha,
		},
		t,
	)
}

func tags(n int, name, key string) map[string]string {
	result := map[string]string{key: strconv.Itoa(n)}
	if name != "" {
		result["name"] = name
	}
	return result
}
