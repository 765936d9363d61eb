// Package opendata pages through the City open-data records API and returns
// each dataset as a raw table of string values.
package opendata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"licence-trends/config"
	"licence-trends/metrics"
	"licence-trends/models"
	"licence-trends/storage"
	"licence-trends/utils"
)

// pageResponse is the envelope returned by GET {base}/{dataset}/records.
type pageResponse struct {
	TotalCount int                          `json:"total_count"`
	Results    []map[string]json.RawMessage `json:"results"`
}

// Fetcher drives paginated downloads of one dataset at a time. Pages within a
// dataset are requested in parallel on a bounded worker pool.
type Fetcher struct {
	cfg     *config.Config
	logger  *utils.Logger
	metrics *metrics.Metrics
	client  *http.Client
	retry   *utils.RetryConfig
}

// New creates a ready-to-use Fetcher. m may be nil.
func New(cfg *config.Config, logger *utils.Logger, m *metrics.Metrics) *Fetcher {
	return &Fetcher{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		client:  &http.Client{},
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   time.Second,
			Logger:      logger,
		},
	}
}

// pageResult is owned by a single worker until the pool drains.
type pageResult struct {
	offset int
	rows   []map[string]string
	failed bool
}

// FetchDataset downloads every record of a dataset. A page that still fails
// after retries contributes no rows; the shortfall against total_count is
// logged and recorded, never corrected.
func (f *Fetcher) FetchDataset(ctx context.Context, src config.Source) (*models.RawTable, error) {
	limit := f.cfg.PageSize
	table := &models.RawTable{Source: src.Name}

	f.logger.Info("[opendata] %s: requesting first page (dataset %s)", src.Name, src.Dataset)
	first, total, err := f.fetchPage(ctx, src.Dataset, 0, limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("opendata: %s: %w", src.Dataset, ctx.Err())
		}
		f.recordPage(src.Dataset, metrics.OutcomeFailed, 0)
		f.logger.Warn("[opendata] %s: first page failed, no records fetched: %v", src.Name, err)
		return table, nil
	}
	f.recordPage(src.Dataset, metrics.OutcomeOK, len(first))
	f.logger.Info("[opendata] %s: %d records to fetch", src.Name, total)

	if total == 0 {
		return table, nil
	}

	claimed := utils.NewKeySet[int]()
	claimed.Add(0)

	pool := utils.NewWorkerPool(f.cfg.MaxWorkers, f.cfg.RateLimitMs)
	var (
		mu      sync.Mutex
		results = []pageResult{{offset: 0, rows: first}}
	)

	pages := 0
	for offset := limit; offset < total; offset += limit {
		if !claimed.Add(offset) {
			continue
		}
		pages++
		off := offset
		pool.Submit(ctx, func() {
			rows, _, err := f.fetchPage(ctx, src.Dataset, off, limit)
			res := pageResult{offset: off, rows: rows}
			if err != nil {
				f.logger.Warn("[opendata] %s: page at offset %d failed: %v", src.Name, off, err)
				res = pageResult{offset: off, failed: true}
				f.recordPage(src.Dataset, metrics.OutcomeFailed, 0)
			} else {
				f.recordPage(src.Dataset, metrics.OutcomeOK, len(rows))
			}

			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		})
	}
	f.logger.Info("[opendata] %s: fetching %d pages with %d workers", src.Name, pages, pool.Size())
	pool.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("opendata: %s: %w", src.Dataset, err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].offset < results[j].offset })
	failed := 0
	for _, r := range results {
		if r.failed {
			failed++
			continue
		}
		table.Rows = append(table.Rows, r.rows...)
	}

	shortfall := total - len(table.Rows)
	if f.metrics != nil {
		f.metrics.FetchShortfall.WithLabelValues(src.Dataset).Set(float64(shortfall))
	}
	if shortfall != 0 {
		f.logger.Warn("[opendata] %s: fetched %d of %d records (%d short, %d failed pages)",
			src.Name, len(table.Rows), total, shortfall, failed)
	} else {
		f.logger.Info("[opendata] %s: fetched all %d records", src.Name, total)
	}
	return table, nil
}

// FetchAll downloads the sources one after the other and hands each non-empty
// table to w. It returns the number of records saved per source.
func (f *Fetcher) FetchAll(ctx context.Context, sources []config.Source, w storage.RawTableWriter) (map[string]int, error) {
	saved := make(map[string]int, len(sources))
	for _, src := range sources {
		table, err := f.FetchDataset(ctx, src)
		if err != nil {
			return saved, err
		}
		if len(table.Rows) == 0 {
			f.logger.Warn("[opendata] %s: no records fetched, nothing saved", src.Name)
			continue
		}
		if err := w.WriteRaw(table); err != nil {
			return saved, fmt.Errorf("opendata: save %s: %w", src.Name, err)
		}
		saved[src.Name] = len(table.Rows)
		f.logger.Info("[opendata] %s: saved %d records", src.Name, len(table.Rows))
	}
	return saved, nil
}

func (f *Fetcher) recordPage(dataset, outcome string, records int) {
	if f.metrics == nil {
		return
	}
	f.metrics.FetchPages.WithLabelValues(dataset, outcome).Inc()
	if records > 0 {
		f.metrics.FetchRecords.WithLabelValues(dataset).Add(float64(records))
	}
}

// fetchPage requests one page with retries, each attempt bounded by the
// configured request timeout.
func (f *Fetcher) fetchPage(ctx context.Context, dataset string, offset, limit int) ([]map[string]string, int, error) {
	endpoint, err := f.pageURL(dataset, offset, limit)
	if err != nil {
		return nil, 0, err
	}

	var page pageResponse
	err = f.retry.Do(ctx, fmt.Sprintf("%s@%d", dataset, offset), func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, f.cfg.RequestTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("unexpected status %s", resp.Status)
		}

		page = pageResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			return fmt.Errorf("decode page: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	rows := make([]map[string]string, 0, len(page.Results))
	for _, rec := range page.Results {
		rows = append(rows, flatten(rec))
	}
	return rows, page.TotalCount, nil
}

func (f *Fetcher) pageURL(dataset string, offset, limit int) (string, error) {
	base, err := url.Parse(strings.TrimRight(f.cfg.APIBaseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("opendata: base url: %w", err)
	}
	u := base.JoinPath(dataset, "records")
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// flatten turns a JSON record into string cells. Nulls are dropped, strings
// are unquoted, nested values keep their compact JSON text.
func flatten(rec map[string]json.RawMessage) map[string]string {
	row := make(map[string]string, len(rec))
	for k, raw := range rec {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			continue
		}
		if raw[0] == '"' {
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				if s != "" {
					row[k] = s
				}
				continue
			}
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			row[k] = string(raw)
			continue
		}
		row[k] = buf.String()
	}
	return row
}
