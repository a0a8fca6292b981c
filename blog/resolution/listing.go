package resolution

import (
	"context"
	"errors"

	"github.com/dfryer1193/publog/blog/domain"
	"github.com/dfryer1193/publog/blog/language"
)

// Entry is one post on a listing page, shown in Language.
type Entry struct {
	Summary  domain.PostSummary
	Language string
	URL      string
}

// Listing returns the posts of group that have a published file in an
// acceptable language, newest first. date, when set, keeps only that day.
// cold reports that the cache missed and storage was scanned instead.
func (r *Resolver) Listing(ctx context.Context, group, lang, date string) (entries []Entry, cold bool, err error) {
	if r.index == nil {
		return nil, true, domain.ErrCacheMiss
	}

	posts, err := r.index.Read(ctx, group)
	if errors.Is(err, domain.ErrCacheMiss) {
		cold = true
		posts, err = r.index.Scan(ctx, group)
	}
	if err != nil {
		return nil, cold, err
	}

	entries = make([]Entry, 0, len(posts))
	for i := range posts {
		s := &posts[i]
		if date != "" && s.Date != date {
			continue
		}
		shown, ok := publishedLanguage(s, lang)
		if !ok {
			continue
		}
		entries = append(entries, Entry{Summary: *s, Language: shown, URL: r.urls.SummaryURL(s, shown)})
	}
	return entries, cold, nil
}

// publishedLanguage picks the first published candidate language of s.
func publishedLanguage(s *domain.PostSummary, lang string) (string, bool) {
	for _, candidate := range language.Candidates(lang, s.PrimaryLanguage, s.AvailableLanguages) {
		if s.LanguageStatuses[candidate] == domain.StatusPublished {
			return candidate, true
		}
	}
	return "", false
}
