// Package detector infers which tools a dotfiles repository configures from
// the names of its top-level entries.
package detector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/thep200/dothub-crawler/cfg"
	"github.com/thep200/dothub-crawler/internal/source"
	"github.com/thep200/dothub-crawler/pkg/log"
)

var ErrUnknownProvider = errors.New("no source owns repository")

// Rule maps a filename substring to a tag.
type Rule struct {
	Pattern string
	Tag     string
}

// DefaultRules is the built-in vocabulary. Several patterns may share a tag.
func DefaultRules() []Rule {
	return []Rule{
		{"tmux", "tmux"}, {"hypr", "hypr"}, {"i3", "i3"}, {"sway", "sway"},
		{"nvim", "neovim"}, {"neovim", "neovim"}, {"vim", "vim"},
		{"alacritty", "alacritty"}, {"kitty", "kitty"}, {"wezterm", "wezterm"},
		{"zsh", "zsh"}, {"bash", "bash"}, {"fish", "fish"}, {"emacs", "emacs"},
		{"polybar", "polybar"}, {"dunst", "dunst"}, {"picom", "picom"},
		{"rofi", "rofi"}, {"conky", "conky"}, {"xmonad", "xmonad"},
		{"awesome", "awesomeWM"}, {"qtile", "qtile"}, {"openbox", "openbox"},
		{"bspwm", "bspwm"}, {"herbstluftwm", "herbstluftwm"},
		{"fluxbox", "fluxbox"}, {"lxqt", "lxqt"}, {"cinnamon", "cinnamon"},
		{"xfce", "xfce"}, {"gnome", "gnome"}, {"kde", "kde/plasma"},
		{"plasma", "kde/plasma"}, {"nix", "nix"}, {"brew", "brew"},
		{"vscode", "vscode"}, {"sublime", "sublime"}, {"zprofile", "zprofile"},
		{"xprofile", "xprofile"}, {"waybar", "waybar"}, {"wofi", "wofi"},
	}
}

// RulesFromConfig returns the configured table, or DefaultRules when none
// is configured. Entries with an empty pattern or tag are dropped.
func RulesFromConfig(c cfg.Detector) []Rule {
	if len(c.Rules) == 0 {
		return DefaultRules()
	}
	rules := make([]Rule, 0, len(c.Rules))
	for _, r := range c.Rules {
		if r.Pattern == "" || r.Tag == "" {
			continue
		}
		rules = append(rules, Rule{Pattern: r.Pattern, Tag: r.Tag})
	}
	return rules
}

// Match returns every tag whose pattern occurs in at least one name.
// Matching is a case-sensitive substring test on the raw names; "Nvim" does
// not match "nvim". The result is sorted, so neither the order of names nor
// the order of rules affects it.
func Match(names []string, rules []Rule) []string {
	seen := make(map[string]struct{})
	for _, name := range names {
		for _, rule := range rules {
			if strings.Contains(name, rule.Pattern) {
				seen[rule.Tag] = struct{}{}
			}
		}
	}

	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

type listing struct {
	lastUpdated time.Time
	names       []string
}

// Memo remembers top-level listings per url for as long as the repository's
// last update time is unchanged. It holds names rather than tags, so a rule
// change takes effect without flushing it. One Memo is meant to outlive many
// runs; it is safe for concurrent use.
type Memo struct {
	cache *lru.Cache[string, listing]
}

// NewMemo returns a memo holding up to size listings, or nil (no memo) when
// size is not positive.
func NewMemo(size int) (*Memo, error) {
	if size <= 0 {
		return nil, nil
	}
	cache, err := lru.New[string, listing](size)
	if err != nil {
		return nil, fmt.Errorf("detector memo: %w", err)
	}
	return &Memo{cache: cache}, nil
}

func (m *Memo) get(repoURL string, lastUpdated time.Time) ([]string, bool) {
	if m == nil {
		return nil, false
	}
	hit, ok := m.cache.Get(repoURL)
	if !ok || !hit.lastUpdated.Equal(lastUpdated) {
		return nil, false
	}
	return hit.names, true
}

func (m *Memo) add(repoURL string, lastUpdated time.Time, names []string) {
	if m == nil {
		return
	}
	m.cache.Add(repoURL, listing{lastUpdated: lastUpdated, names: append([]string(nil), names...)})
}

func (m *Memo) Len() int {
	if m == nil {
		return 0
	}
	return m.cache.Len()
}

type Detector struct {
	sources []source.Source
	rules   []Rule
	memo    *Memo
	logger  log.Logger
}

// NewDetector matches against rules. memo may be nil.
func NewDetector(sources []source.Source, rules []Rule, memo *Memo, logger log.Logger) *Detector {
	return &Detector{
		sources: sources,
		rules:   rules,
		memo:    memo,
		logger:  logger,
	}
}

func (d *Detector) sourceFor(repoURL string) source.Source {
	for _, s := range d.sources {
		if s.Owns(repoURL) {
			return s
		}
	}
	return nil
}

// Detect lists the repository's top-level entries and matches them. When the
// listing fails the tag set is empty and the error says why; callers treat
// that as "nothing detected".
func (d *Detector) Detect(ctx context.Context, repoURL string) ([]string, error) {
	names, err := d.list(ctx, repoURL)
	if err != nil {
		return []string{}, err
	}
	return Match(names, d.rules), nil
}

func (d *Detector) list(ctx context.Context, repoURL string) ([]string, error) {
	s := d.sourceFor(repoURL)
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, repoURL)
	}
	return s.ListContents(ctx, repoURL)
}

// DetectSince is Detect with the listing taken from the memo while the
// repository's last update time stays the same. Failed listings are not
// remembered.
func (d *Detector) DetectSince(ctx context.Context, repoURL string, lastUpdated *time.Time) ([]string, error) {
	if d.memo == nil || lastUpdated == nil {
		return d.Detect(ctx, repoURL)
	}
	if names, ok := d.memo.get(repoURL, *lastUpdated); ok {
		d.logger.Debug(ctx, "Listing memo hit for %s", repoURL)
		return Match(names, d.rules), nil
	}

	names, err := d.list(ctx, repoURL)
	if err != nil {
		return []string{}, err
	}
	d.memo.add(repoURL, *lastUpdated, names)
	return Match(names, d.rules), nil
}
