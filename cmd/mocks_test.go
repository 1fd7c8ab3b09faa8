package cmd

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/adscope/internal/config"
	"github.com/xkilldash9x/adscope/internal/crawler"
)

// fakeCrawler records what the command asked for and returns a canned result.
type fakeCrawler struct {
	mu     sync.Mutex
	result *crawler.Result
	cfg    config.Interface
	url    string
	opts   crawler.Options
	calls  int
}

func (f *fakeCrawler) Crawl(_ context.Context, url string, opts crawler.Options) *crawler.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.url, f.opts = url, opts
	res := *f.result
	res.URL = url
	return &res
}

// install swaps newCrawler for the fake until the test ends.
func (f *fakeCrawler) install(t interface{ Cleanup(func()) }) {
	orig := newCrawler
	newCrawler = func(cfg config.Interface, _ *zap.Logger) crawlRunner {
		f.mu.Lock()
		f.cfg = cfg
		f.mu.Unlock()
		return f
	}
	t.Cleanup(func() { newCrawler = orig })
}
