// Package tsdb is a thin write client over the time-series store that
// persists collector-ingested alerts. The store itself, its schema, and
// retention policy are out of scope; this package only specifies the
// write-side interface the collector's ingest component depends on.
package tsdb

import (
	"fmt"
	"time"

	client "github.com/influxdata/influxdb1-client/v2"

	"github.com/edoardooldani/honeysensor/pkg/transport"
)

// Writer persists one decoded alert payload per call. The collector's
// ingest component dispatches by payload variant; callers pass the
// already-validated Packet straight through.
type Writer interface {
	WriteAlert(p transport.Packet) error
	Close() error
}

// Config points at the target database.
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
}

// influxWriter is the concrete Writer backed by InfluxDB's HTTP line
// protocol client.
type influxWriter struct {
	c  client.Client
	db string
}

// New connects a Writer to the configured InfluxDB instance.
func New(cfg Config) (Writer, error) {
	c, err := client.NewHTTPClient(client.HTTPConfig{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("tsdb: connect to %s: %w", cfg.Addr, err)
	}
	return &influxWriter{c: c, db: cfg.Database}, nil
}

func (w *influxWriter) Close() error {
	return w.c.Close()
}

// WriteAlert maps p's payload variant onto a single point in the
// "alerts" measurement, tagged by data type and attack type so the
// TSDB's own dashboards (out of scope here) can filter per alert class.
func (w *influxWriter) WriteAlert(p transport.Packet) error {
	bp, err := client.NewBatchPoints(client.BatchPointsConfig{Database: w.db})
	if err != nil {
		return fmt.Errorf("tsdb: new batch: %w", err)
	}

	tags, fields := pointFor(p)
	tags["data_type"] = p.Header.DataType.String()

	pt, err := client.NewPoint("alerts", tags, fields, time.Unix(p.Header.TimestampS, 0))
	if err != nil {
		return fmt.Errorf("tsdb: new point: %w", err)
	}
	bp.AddPoint(pt)

	if err := w.c.Write(bp); err != nil {
		return fmt.Errorf("tsdb: write: %w", err)
	}
	return nil
}

func pointFor(p transport.Packet) (tags map[string]string, fields map[string]interface{}) {
	tags = map[string]string{"priority": p.Header.Priority.String()}
	fields = map[string]interface{}{"session_seq": int64(p.Header.ID)}

	switch payload := p.Payload.(type) {
	case transport.Alert:
		tags["ip"] = payload.IP.String()
		fields["feature_count"] = len(payload.Features)
	case transport.ArpAlert:
		tags["ip"] = payload.IP.String()
		tags["attack_type"] = payload.AttackType.String()
		fields["mac_count"] = len(payload.MACs)
	case transport.TcpAlert:
		tags["ip"] = payload.IP.String()
		tags["attack_type"] = payload.AttackType.String()
		fields["dst_port"] = int(payload.DstPort)
	}
	return tags, fields
}
