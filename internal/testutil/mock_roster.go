// Package testutil provides testing utilities for the OneRoster client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/Sternrassler/oneroster-client/pkg/oauth1"
)

// TotalCountHeader is the header the mock uses to announce collection sizes.
const TotalCountHeader = "X-Total-Count"

// RecordedRequest captures one request received by the mock.
type RecordedRequest struct {
	Path          string
	Limit         int
	Offset        int
	Authorization string
	Status        int
}

// MockRoster is a configurable mock OneRoster server for testing. It serves
// registered collections with limit/offset paging and, when credentials are
// set, rejects requests whose OAuth1 signature does not verify.
type MockRoster struct {
	server *httptest.Server

	mu             sync.RWMutex
	consumerKey    string
	consumerSecret string
	collections    map[string][]json.RawMessage
	statuses       map[string][]int
	omitTotal      map[string]bool
	totalOverride  map[string]string
	headers        map[string]map[string]string
	requests       []RecordedRequest
}

// NewMockRoster creates a new mock server. Empty credentials disable
// signature verification.
func NewMockRoster(consumerKey, consumerSecret string) *MockRoster {
	m := &MockRoster{
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		collections:    make(map[string][]json.RawMessage),
		statuses:       make(map[string][]int),
		omitTotal:      make(map[string]bool),
		totalOverride:  make(map[string]string),
		headers:        make(map[string]map[string]string),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the mock server URL.
func (m *MockRoster) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockRoster) Close() {
	m.server.Close()
}

// SetRecords registers the full collection served at path.
func (m *MockRoster) SetRecords(path string, records ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw := make([]json.RawMessage, len(records))
	for i, r := range records {
		raw[i] = json.RawMessage(r)
	}
	m.collections[path] = raw
}

// GenerateRecords registers n records of the form {"sourcedId":"<prefix>-<i>"}.
func (m *MockRoster) GenerateRecords(path, prefix string, n int) {
	records := make([]string, n)
	for i := range records {
		records[i] = fmt.Sprintf(`{"sourcedId":"%s-%d"}`, prefix, i)
	}
	m.SetRecords(path, records...)
}

// QueueStatuses makes the next requests to path answer with the given
// statuses before normal serving resumes. A queued 200 serves the page.
func (m *MockRoster) QueueStatuses(path string, statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[path] = append(m.statuses[path], statuses...)
}

// OmitTotalCount stops the mock from sending the total-count header for path.
func (m *MockRoster) OmitTotalCount(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.omitTotal[path] = true
}

// SetTotalCount sends value as the total-count header for path instead of
// the real collection size.
func (m *MockRoster) SetTotalCount(path, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalOverride[path] = value
}

// SetHeaders adds extra response headers for path.
func (m *MockRoster) SetHeaders(path string, headers map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers[path] = headers
}

// Requests returns the requests received for path, in arrival order.
func (m *MockRoster) Requests(path string) []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []RecordedRequest
	for _, r := range m.requests {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// RequestCount returns the number of requests received.
func (m *MockRoster) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// Offsets returns the offsets requested for path, in arrival order.
func (m *MockRoster) Offsets(path string) []int {
	var offsets []int
	for _, r := range m.Requests(path) {
		offsets = append(offsets, r.Offset)
	}
	return offsets
}

func (m *MockRoster) handle(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := atoiDefault(query.Get("limit"), 100)
	offset := atoiDefault(query.Get("offset"), 0)

	m.mu.Lock()
	rec := RecordedRequest{
		Path:          r.URL.Path,
		Limit:         limit,
		Offset:        offset,
		Authorization: r.Header.Get("Authorization"),
	}
	status := http.StatusOK
	if queue := m.statuses[r.URL.Path]; len(queue) > 0 {
		status = queue[0]
		m.statuses[r.URL.Path] = queue[1:]
	}
	records, known := m.collections[r.URL.Path]
	omitTotal := m.omitTotal[r.URL.Path]
	totalOverride := m.totalOverride[r.URL.Path]
	extra := m.headers[r.URL.Path]
	m.mu.Unlock()

	if status == http.StatusOK && !m.verify(r) {
		status = http.StatusUnauthorized
	}
	if status == http.StatusOK && !known {
		status = http.StatusNotFound
	}

	rec.Status = status
	m.mu.Lock()
	m.requests = append(m.requests, rec)
	m.mu.Unlock()

	for key, value := range extra {
		w.Header().Set(key, value)
	}
	w.Header().Set("Content-Type", "application/json")

	if status != http.StatusOK {
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"error":%q}`, http.StatusText(status))
		return
	}

	page := []json.RawMessage{}
	if offset < len(records) {
		end := offset + limit
		if end > len(records) {
			end = len(records)
		}
		page = records[offset:end]
	}

	switch {
	case totalOverride != "":
		w.Header().Set(TotalCountHeader, totalOverride)
	case !omitTotal:
		w.Header().Set(TotalCountHeader, strconv.Itoa(len(records)))
	}

	body, err := json.Marshal(map[string][]json.RawMessage{
		strings.TrimPrefix(r.URL.Path, "/"): page,
	})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// verify checks the OAuth1 signature the way a OneRoster provider would.
func (m *MockRoster) verify(r *http.Request) bool {
	if m.consumerKey == "" {
		return true
	}

	params, err := oauth1.ParseHeader(r.Header.Get("Authorization"))
	if err != nil {
		return false
	}
	if params[oauth1.ParamConsumerKey] != m.consumerKey ||
		params[oauth1.ParamSignatureMethod] != oauth1.SignatureMethod {
		return false
	}

	signed := make(map[string]string)
	for key, values := range r.URL.Query() {
		signed[key] = values[0]
	}
	for key, value := range params {
		if key != oauth1.ParamSignature {
			signed[key] = value
		}
	}

	base := oauth1.BaseString(r.Method, m.server.URL+r.URL.Path, signed)
	return oauth1.Signature(m.consumerSecret, base) == params[oauth1.ParamSignature]
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
