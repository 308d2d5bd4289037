package history

import (
	"testing"
	"time"

	envisalink "github.com/caarlos0/homekit-envisalink"
	"github.com/caarlos0/homekit-envisalink/entities"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	connected  bool
	zones      map[int]envisalink.Zone
	partitions map[int]envisalink.Partition
}

func (s fakeSource) Connected() bool { return s.connected }

func (s fakeSource) Zone(n int) (envisalink.Zone, bool) {
	z, ok := s.zones[n]
	return z, ok
}

func (s fakeSource) Partition(n int) (envisalink.Partition, bool) {
	p, ok := s.partitions[n]
	return p, ok
}

type fakeWriter struct {
	points []*write.Point
}

func (w *fakeWriter) WritePoint(p *write.Point) {
	w.points = append(w.points, p)
}

func tagsOf(p *write.Point) map[string]string {
	result := map[string]string{}
	for _, tag := range p.TagList() {
		result[tag.Key] = tag.Value
	}
	return result
}

func fieldsOf(p *write.Point) map[string]any {
	result := map[string]any{}
	for _, field := range p.FieldList() {
		result[field.Key] = field.Value
	}
	return result
}

var now = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func TestZonePoint(t *testing.T) {
	p := ZonePoint(envisalink.Zone{
		Number:    4,
		Status:    envisalink.ZoneStatus{Open: true, Tamper: true},
		Bypassed:  true,
		LastFault: 25,
	}, "Garage", now)

	require.Equal(t, MeasurementZone, p.Name())
	require.Equal(t, now, p.Time())
	require.Equal(t, map[string]string{"zone": "4", "name": "Garage"}, tagsOf(p))
	require.Equal(t, map[string]any{
		"open":       true,
		"fault":      false,
		"alarm":      false,
		"tamper":     true,
		"bypassed":   true,
		"last_fault": int64(25),
	}, fieldsOf(p))
}

func TestPartitionPoint(t *testing.T) {
	p := PartitionPoint(envisalink.Partition{
		Number: 1,
		Status: envisalink.PartitionStatus{Alpha: "Armed Away", ArmedAway: true},
	}, "", now)

	require.Equal(t, MeasurementPartition, p.Name())
	require.Equal(t, map[string]string{"partition": "1"}, tagsOf(p))
	require.Equal(t, map[string]any{
		"ready": false,
		"armed": true,
		"alarm": false,
		"alpha": "Armed Away",
	}, fieldsOf(p))
}

func TestHandle(t *testing.T) {
	writer := &fakeWriter{}
	rec := &Recorder{
		writer: writer,
		source: fakeSource{
			connected: true,
			zones: map[int]envisalink.Zone{
				1: {Number: 1, LastFault: envisalink.MaxLastFault},
			},
			partitions: map[int]envisalink.Partition{
				1: {Number: 1, Status: envisalink.PartitionStatus{Alpha: "Ready", Ready: true}},
			},
		},
		data: entities.Data{
			Zones: map[int]entities.ZoneInfo{1: {Name: "Front Door"}},
		},
		now: func() time.Time { return now },
	}

	rec.Handle(envisalink.Update{Kind: envisalink.UpdateZone, Number: 1})
	rec.Handle(envisalink.Update{Kind: envisalink.UpdateZoneBypass, Number: 1})
	rec.Handle(envisalink.Update{Kind: envisalink.UpdatePartition, Number: 1})
	rec.Handle(envisalink.Update{Kind: envisalink.UpdateConnection})

	// unknown zones and partitions are ignored
	rec.Handle(envisalink.Update{Kind: envisalink.UpdateZone, Number: 9})
	rec.Handle(envisalink.Update{Kind: envisalink.UpdatePartition, Number: 9})

	require.Len(t, writer.points, 4)
	require.Equal(t, "Front Door", tagsOf(writer.points[0])["name"])
	require.Equal(t, MeasurementZone, writer.points[1].Name())
	require.Equal(t, MeasurementPartition, writer.points[2].Name())
	require.Equal(t, MeasurementPanel, writer.points[3].Name())
	require.Equal(t, map[string]any{"connected": true}, fieldsOf(writer.points[3]))
}

func TestConnectDisabled(t *testing.T) {
	_, err := Connect(t.Context(), Options{}, fakeSource{}, entities.Data{})
	require.ErrorIs(t, err, ErrDisabled)
}
