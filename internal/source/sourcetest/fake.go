// Package sourcetest provides an in-memory source.Source for tests.
package sourcetest

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/thep200/dothub-crawler/internal/source"
)

// Fake serves canned pages and listings. Pages are keyed by query then page
// number; a missing page is an empty result.
type Fake struct {
	ProviderName string
	Host         string
	QueryList    []string
	Pages        map[string]map[int][]source.NormalizedRepo
	Contents     map[string][]string
	// FailFetch and FailList make every call of that kind fail.
	FailFetch bool
	FailList  bool
	// FailPages fails individual "query#page" keys.
	FailPages map[string]bool

	mu         sync.Mutex
	fetchCalls int
	listCalls  int
}

func NewFake(name, host string) *Fake {
	return &Fake{
		ProviderName: name,
		Host:         host,
		QueryList:    []string{"dotfiles"},
		Pages:        make(map[string]map[int][]source.NormalizedRepo),
		Contents:     make(map[string][]string),
		FailPages:    make(map[string]bool),
	}
}

// AddRepo puts r on the given page of query and lists names as its contents.
func (f *Fake) AddRepo(query string, page int, r source.NormalizedRepo, names ...string) {
	if f.Pages[query] == nil {
		f.Pages[query] = make(map[int][]source.NormalizedRepo)
	}
	if r.Provider == "" {
		r.Provider = f.ProviderName
	}
	f.Pages[query][page] = append(f.Pages[query][page], r)
	if names != nil {
		f.Contents[r.Url] = names
	}
}

func (f *Fake) Name() string      { return f.ProviderName }
func (f *Fake) Queries() []string { return f.QueryList }
func (f *Fake) Workers() int      { return 2 }

func (f *Fake) Owns(repoURL string) bool {
	u, err := url.Parse(repoURL)
	return err == nil && strings.EqualFold(u.Hostname(), f.Host)
}

func (f *Fake) FetchPage(ctx context.Context, query string, page int) ([]source.NormalizedRepo, error) {
	f.mu.Lock()
	f.fetchCalls++
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", source.ErrSourceUnavailable, err)
	}
	if f.FailFetch || f.FailPages[fmt.Sprintf("%s#%d", query, page)] {
		return nil, fmt.Errorf("%w: %s is down", source.ErrSourceUnavailable, f.ProviderName)
	}
	repos := f.Pages[query][page]
	return append([]source.NormalizedRepo(nil), repos...), nil
}

func (f *Fake) ListContents(ctx context.Context, repoURL string) ([]string, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", source.ErrSourceUnavailable, err)
	}
	if f.FailList {
		return nil, fmt.Errorf("%w: %s listing is down", source.ErrSourceUnavailable, f.ProviderName)
	}
	return append([]string(nil), f.Contents[repoURL]...), nil
}

func (f *Fake) FetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

func (f *Fake) ListCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}
