package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/oneroster-client/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

const (
	// DefaultPageSize is the limit sent with every page request.
	DefaultPageSize = 10000

	// DefaultTotalCountHeader carries the collection size.
	DefaultTotalCountHeader = "X-Total-Count"
)

// ErrEmptyPage is reported when a page returns no records before the
// announced total was reached.
var ErrEmptyPage = errors.New("empty page before total count reached")

var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oneroster_pages_total",
		Help: "Total pages fetched successfully by endpoint",
	}, []string{"endpoint"})

	recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oneroster_records_total",
		Help: "Total records accumulated by endpoint",
	}, []string{"endpoint"})

	incompleteTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oneroster_incomplete_collections_total",
		Help: "Total collections whose pull stopped before the total count",
	}, []string{"endpoint"})
)

// Record is one resource as returned by the server.
type Record = json.RawMessage

// Getter issues one signed, retried GET. client.Client implements it.
type Getter interface {
	Get(ctx context.Context, endpoint string, params url.Values) transport.Result
}

// Config holds fetcher configuration.
type Config struct {
	// PageSize is the limit sent with every request.
	PageSize int

	// TotalCountHeader names the header carrying the collection size.
	TotalCountHeader string
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		PageSize:         DefaultPageSize,
		TotalCountHeader: DefaultTotalCountHeader,
	}
}

// Collection is the outcome of pulling one endpoint.
type Collection struct {
	// Endpoint is the path the records came from, e.g. "/orgs".
	Endpoint string

	// Records in server order, across all pages fetched.
	Records []Record

	// Total is the count learned from the first page; -1 if no page succeeded.
	Total int

	// Pages is the number of successful page fetches.
	Pages int

	// Complete is true once len(Records) reached Total.
	Complete bool

	// Status is the status of the last page request.
	Status int

	// Err describes why the pull stopped early, if it did.
	Err error
}

// Fetcher pulls complete collections page by page.
type Fetcher struct {
	getter Getter
	config Config
	logger zerolog.Logger
}

// NewFetcher creates a fetcher. Zero config values take their defaults.
func NewFetcher(getter Getter, config Config, logger zerolog.Logger) *Fetcher {
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	if config.TotalCountHeader == "" {
		config.TotalCountHeader = DefaultTotalCountHeader
	}

	return &Fetcher{
		getter: getter,
		config: config,
		logger: logger,
	}
}

// FetchAll retrieves every record of endpoint. It stops at the first failed
// page and returns what it accumulated so far.
func (f *Fetcher) FetchAll(ctx context.Context, endpoint string) Collection {
	start := time.Now()
	key := ResourceKey(endpoint)

	coll := Collection{
		Endpoint: endpoint,
		Records:  []Record{},
		Total:    -1,
	}

	for offset := 0; ; offset += f.config.PageSize {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(f.config.PageSize))
		params.Set("offset", strconv.Itoa(offset))

		res := f.getter.Get(ctx, endpoint, params)
		coll.Status = res.StatusCode

		if res.StatusCode != http.StatusOK {
			coll.Err = fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(res.Body)))
			if res.Err != nil {
				coll.Err = res.Err
			}
			f.logger.Error().
				Str("endpoint", endpoint).
				Int("status", res.StatusCode).
				Int("offset", offset).
				Int("records", len(coll.Records)).
				Bytes("body", truncate(res.Body, 256)).
				Msg("Page fetch failed - keeping partial collection")
			incompleteTotal.WithLabelValues(endpoint).Inc()
			return coll
		}

		records, err := ExtractRecords(res.Body, key)
		if err != nil {
			coll.Err = err
			f.logger.Error().
				Err(err).
				Str("endpoint", endpoint).
				Int("offset", offset).
				Msg("Failed to decode page - keeping partial collection")
			incompleteTotal.WithLabelValues(endpoint).Inc()
			return coll
		}

		coll.Records = append(coll.Records, records...)
		coll.Pages++
		pagesTotal.WithLabelValues(endpoint).Inc()
		recordsTotal.WithLabelValues(endpoint).Add(float64(len(records)))

		if coll.Total < 0 {
			coll.Total = f.totalCount(res, len(records))
			f.logger.Info().
				Str("endpoint", endpoint).
				Int("total", coll.Total).
				Msg("Starting paginated fetch")
		}

		f.logger.Debug().
			Str("endpoint", endpoint).
			Int("offset", offset).
			Int("records", len(records)).
			Int("fetched", len(coll.Records)).
			Int("total", coll.Total).
			Msg("Page fetched")

		if len(coll.Records) >= coll.Total {
			coll.Complete = true
			break
		}

		// A page without records would never advance toward the total.
		if len(records) == 0 {
			coll.Err = ErrEmptyPage
			f.logger.Warn().
				Str("endpoint", endpoint).
				Int("offset", offset).
				Int("fetched", len(coll.Records)).
				Int("total", coll.Total).
				Msg("Empty page before total count reached - stopping")
			incompleteTotal.WithLabelValues(endpoint).Inc()
			return coll
		}
	}

	f.logger.Info().
		Str("endpoint", endpoint).
		Int("records", len(coll.Records)).
		Int("pages", coll.Pages).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return coll
}

// totalCount reads the total-count header, falling back to the first
// page's record count when it is missing or not an integer.
func (f *Fetcher) totalCount(res transport.Result, firstPage int) int {
	raw := strings.TrimSpace(res.Header(f.config.TotalCountHeader))
	total, err := strconv.Atoi(raw)
	if err != nil || total < 0 {
		return firstPage
	}
	return total
}

// ResourceKey is the body key holding an endpoint's records: the endpoint
// path without its leading separator.
func ResourceKey(endpoint string) string {
	return strings.TrimPrefix(endpoint, "/")
}

// ExtractRecords decodes the records stored under key in a page body. A
// body without key yields no records.
func ExtractRecords(body []byte, key string) ([]Record, error) {
	var page map[string]json.RawMessage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}

	raw, ok := page[key]
	if !ok || string(raw) == "null" {
		return nil, nil
	}

	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode %s records: %w", key, err)
	}
	return records, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
