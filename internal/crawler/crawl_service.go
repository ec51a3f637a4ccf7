// Package crawler reads archived copies of pages from CommonCrawl. It is used as a fallback
// when the live site cannot be reached.
package crawler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/IliaW/email-harvester/config"
	"github.com/IliaW/email-harvester/internal/model"
	jsoniter "github.com/json-iterator/go"
	"github.com/karust/gogetcrawl/common"
	"github.com/karust/gogetcrawl/commoncrawl"
	"github.com/patrickmn/go-cache"
)

const (
	indexListUrl = "https://index.commoncrawl.org/collinfo.json"
	source       = "commoncrawl"
)

var (
	ErrNoCapture = errors.New("no archived capture found")

	htmlRegex = regexp.MustCompile(`(?si)<!doctype html>.*?</html>`)
)

type Index struct {
	Id       string `json:"id"`
	Name     string `json:"name"`
	Timegate string `json:"timegate"`
	CdxAPI   string `json:"cdx-api"`
}

type CommonCrawlerService struct {
	crawler    *commoncrawl.CommonCrawl
	cfg        *config.ArchiveConfig
	log        *slog.Logger
	localCache *cache.Cache
	// indexes is swapped in tests.
	indexes func() ([]byte, error)
	mu      sync.Mutex
}

func NewCrawlService(cfg *config.ArchiveConfig, log *slog.Logger) *CommonCrawlerService {
	s := &CommonCrawlerService{
		cfg:        cfg,
		log:        log,
		localCache: cache.New(72*time.Hour, 72*time.Hour), // indexes update every month
	}
	s.indexes = func() ([]byte, error) {
		return common.Get(indexListUrl, cfg.RequestTimeout, cfg.Retries)
	}

	return s
}

// client connects lazily; due to request limitations the first attempt may fail.
func (c *CommonCrawlerService) client() (*commoncrawl.CommonCrawl, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.crawler != nil {
		return c.crawler, nil
	}
	cc, err := commoncrawl.New(c.cfg.RequestTimeout, c.cfg.Retries)
	if err != nil {
		c.log.Error("failed to create common crawl client.", slog.String("err", err.Error()))
		return nil, err
	}
	c.crawler = cc

	return cc, nil
}

// Fetch returns the most recent archived HTML capture of rawURL.
func (c *CommonCrawlerService) Fetch(ctx context.Context, rawURL string) *model.FetchResult {
	startTime := time.Now()
	result := &model.FetchResult{URL: rawURL, Source: source}
	defer func() { result.Elapsed = time.Since(startTime) }()
	if err := ctx.Err(); err != nil {
		result.Kind = model.FetchTimeout
		result.Err = err
		return result
	}

	cc, err := c.client()
	if err != nil {
		result.Kind = model.FetchConnectionError
		result.Err = err
		return result
	}
	indexList, err := c.getIndexes()
	if err != nil {
		result.Kind = model.FetchConnectionError
		result.Err = err
		return result
	}
	requestCfg := common.RequestConfig{
		URL:     rawURL,
		Filters: []string{"statuscode:200", "mimetype:text/html"},
	}

	for i := 0; i < c.cfg.LastCrawlIndexes && i < len(indexList); i++ {
		p, _ := cc.GetPagesIndex(requestCfg, indexList[i].Id)
		if len(p) == 0 {
			c.log.Debug("no captures found.", slog.String("url", rawURL), slog.String("index", indexList[i].Id))
			continue
		}
		resp, err := cc.GetFile(p[len(p)-1]) // last one is the most recent
		if err != nil {
			c.log.Error("failed to get file.", slog.String("err", err.Error()))
			break
		}
		body := string(resp)
		result.HTML = extractHtml(body)
		break
	}
	if result.HTML == "" {
		result.Kind = model.FetchHTTPError
		result.StatusCode = http.StatusNotFound
		result.Err = ErrNoCapture
		return result
	}
	result.Kind = model.FetchOK
	result.StatusCode = http.StatusOK

	return result
}

func (c *CommonCrawlerService) getIndexes() ([]Index, error) {
	if i, ok := c.localCache.Get("indexes"); ok {
		return i.([]Index), nil
	}

	response, err := c.indexes()
	if err != nil {
		return nil, err
	}

	var indexes []Index
	err = jsoniter.Unmarshal(response, &indexes)
	if err != nil {
		return indexes, err
	}
	c.localCache.Set("indexes", indexes, cache.DefaultExpiration)

	return indexes, nil
}

// extractHtml strips the WARC envelope. Captures without a doctype are returned whole.
func extractHtml(body string) string {
	if match := htmlRegex.FindString(body); match != "" {
		return match
	}
	return body
}
