// Package roster pulls a full snapshot of a OneRoster tenant: every endpoint in
// a fixed list, one after the other, each paged to completion.
package roster

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/Sternrassler/oneroster-client/pkg/pagination"
	"github.com/rs/zerolog"
)

// DefaultEndpoints is the closed set of endpoints pulled per run, in
// declared order.
var DefaultEndpoints = []string{
	"/academicSessions",
	"/orgs",
	"/courses",
	"/classes",
	"/users",
	"/enrollments",
	"/demographics",
}

// CollectionFetcher pulls one endpoint to completion. pagination.Fetcher
// implements it.
type CollectionFetcher interface {
	FetchAll(ctx context.Context, endpoint string) pagination.Collection
}

// Summary reports the outcome of one endpoint pull.
type Summary struct {
	Endpoint string `json:"endpoint"`
	Records  int    `json:"records"`
	Total    int    `json:"total"`
	Pages    int    `json:"pages"`
	Complete bool   `json:"complete"`
	Status   int    `json:"status"`
	Error    string `json:"error,omitempty"`
}

// Dataset maps endpoints to their collections, remembering pull order.
type Dataset struct {
	order       []string
	collections map[string]pagination.Collection
}

func newDataset(capacity int) *Dataset {
	return &Dataset{
		order:       make([]string, 0, capacity),
		collections: make(map[string]pagination.Collection, capacity),
	}
}

func (d *Dataset) put(coll pagination.Collection) {
	if _, ok := d.collections[coll.Endpoint]; !ok {
		d.order = append(d.order, coll.Endpoint)
	}
	d.collections[coll.Endpoint] = coll
}

// Endpoints returns the endpoints in pull order.
func (d *Dataset) Endpoints() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Records returns the records pulled for endpoint, or nil if it was not pulled.
func (d *Dataset) Records(endpoint string) []pagination.Record {
	coll, ok := d.collections[endpoint]
	if !ok {
		return nil
	}
	return coll.Records
}

// Collection returns the full pull outcome for endpoint.
func (d *Dataset) Collection(endpoint string) (pagination.Collection, bool) {
	coll, ok := d.collections[endpoint]
	return coll, ok
}

// Complete reports whether every endpoint was pulled in full.
func (d *Dataset) Complete() bool {
	for _, coll := range d.collections {
		if !coll.Complete {
			return false
		}
	}
	return true
}

// Summaries returns one summary per endpoint, in pull order.
func (d *Dataset) Summaries() []Summary {
	out := make([]Summary, 0, len(d.order))
	for _, endpoint := range d.order {
		coll := d.collections[endpoint]
		s := Summary{
			Endpoint: endpoint,
			Records:  len(coll.Records),
			Total:    coll.Total,
			Pages:    coll.Pages,
			Complete: coll.Complete,
			Status:   coll.Status,
		}
		if coll.Err != nil {
			s.Error = coll.Err.Error()
		}
		out = append(out, s)
	}
	return out
}

// MarshalJSON encodes the dataset as an object of endpoint to record list,
// with keys in pull order.
func (d *Dataset) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, endpoint := range d.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(endpoint)
		if err != nil {
			return nil, err
		}
		records, err := json.Marshal(d.collections[endpoint].Records)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(records)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Orchestrator pulls every configured endpoint in order.
type Orchestrator struct {
	fetcher   CollectionFetcher
	endpoints []string
	logger    zerolog.Logger
}

// NewOrchestrator creates an orchestrator. A nil endpoint list means
// DefaultEndpoints.
func NewOrchestrator(fetcher CollectionFetcher, endpoints []string, logger zerolog.Logger) *Orchestrator {
	if endpoints == nil {
		endpoints = DefaultEndpoints
	}
	eps := make([]string, len(endpoints))
	copy(eps, endpoints)

	return &Orchestrator{
		fetcher:   fetcher,
		endpoints: eps,
		logger:    logger,
	}
}

// Endpoints returns the endpoints this orchestrator pulls.
func (o *Orchestrator) Endpoints() []string {
	out := make([]string, len(o.endpoints))
	copy(out, o.endpoints)
	return out
}

// PullAll fetches each endpoint sequentially. A failed endpoint keeps its
// partial collection and the pull moves on to the next one. Once ctx is done
// the remaining endpoints are recorded as empty, incomplete collections.
func (o *Orchestrator) PullAll(ctx context.Context) *Dataset {
	start := time.Now()
	ds := newDataset(len(o.endpoints))

	for _, endpoint := range o.endpoints {
		if err := ctx.Err(); err != nil {
			o.logger.Warn().
				Str("endpoint", endpoint).
				Err(err).
				Msg("Pull cancelled - skipping endpoint")
			ds.put(pagination.Collection{
				Endpoint: endpoint,
				Records:  []pagination.Record{},
				Total:    -1,
				Err:      err,
			})
			continue
		}

		coll := o.fetcher.FetchAll(ctx, endpoint)
		coll.Endpoint = endpoint
		if coll.Records == nil {
			coll.Records = []pagination.Record{}
		}
		ds.put(coll)

		if !coll.Complete {
			o.logger.Warn().
				Str("endpoint", endpoint).
				Int("records", len(coll.Records)).
				Int("status", coll.Status).
				Msg("Endpoint pulled incompletely")
		}
	}

	o.logger.Info().
		Int("endpoints", len(o.endpoints)).
		Bool("complete", ds.Complete()).
		Dur("duration", time.Since(start)).
		Msg("Pull finished")

	return ds
}
