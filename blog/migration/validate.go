package migration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/dfryer1193/publog/blog/domain"
	"golang.org/x/sync/errgroup"
)

// DefaultSampleSize bounds the posts per group whose content is compared.
const DefaultSampleSize = 10

// Discrepancy kinds.
const (
	MissingInTarget = "missing_in_target"
	ExtraInTarget   = "extra_in_target"
	ContentMismatch = "content_mismatch"
	Unreadable      = "unreadable"
)

// Discrepancy is one difference between the two backends.
type Discrepancy struct {
	Post     string
	Language string
	Kind     string
	Detail   string
}

// ValidationReport is the Result.Report of a Validate run.
type ValidationReport struct {
	Group         string
	SourcePosts   int
	TargetPosts   int
	Sampled       int
	Discrepancies []Discrepancy
}

// OK reports whether the backends agree.
func (r *ValidationReport) OK() bool {
	return r.SourcePosts == r.TargetPosts && len(r.Discrepancies) == 0
}

// Validate compares two backends without writing to either.
type Validate struct {
	source     domain.Storage
	target     domain.Storage
	groups     domain.GroupRepository
	SampleSize int
}

var _ Job = (*Validate)(nil)

func NewValidate(source, target domain.Storage, groups domain.GroupRepository) *Validate {
	return &Validate{source: source, target: target, groups: groups, SampleSize: DefaultSampleSize}
}

func (j *Validate) Name() string { return "validate" }

// Run compares post counts and the live-version content hashes of a sample
// of posts. Discrepancies are reported, never repaired.
func (j *Validate) Run(ctx context.Context, group string, p *Progress) (*Result, error) {
	g, err := j.groups.GetGroup(ctx, group)
	if err != nil {
		return nil, err
	}

	sourceIDs, err := j.source.ListPosts(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("failed to list source posts: %w", err)
	}
	targetIDs, err := j.target.ListPosts(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("failed to list target posts: %w", err)
	}

	report := &ValidationReport{Group: group, SourcePosts: len(sourceIDs), TargetPosts: len(targetIDs)}
	inTarget := make(map[string]bool, len(targetIDs))
	for _, id := range targetIDs {
		inTarget[id.Path()] = true
	}
	inSource := make(map[string]bool, len(sourceIDs))
	var sample []domain.Identifier
	for _, id := range sourceIDs {
		inSource[id.Path()] = true
		if !inTarget[id.Path()] {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{Post: id.Path(), Kind: MissingInTarget})
			continue
		}
		if len(sample) < j.sampleSize() {
			sample = append(sample, id)
		}
	}
	for _, id := range targetIDs {
		if !inSource[id.Path()] {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{Post: id.Path(), Kind: ExtraInTarget})
		}
	}

	report.Sampled = len(sample)
	p.Total(len(sample))

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(4)
	for _, id := range sample {
		eg.Go(func() error {
			found := j.compare(egCtx, group, id)

			mu.Lock()
			defer mu.Unlock()
			report.Discrepancies = append(report.Discrepancies, found...)
			if len(found) == 0 {
				p.Succeeded(id.Path())
			} else {
				p.Failed(id.Path(), fmt.Errorf("%d discrepancies", len(found)))
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	p.Result().Report = report
	return p.Result(), ctx.Err()
}

func (j *Validate) sampleSize() int {
	if j.SampleSize <= 0 {
		return DefaultSampleSize
	}
	return j.SampleSize
}

// compare hashes every language file of the source's live version on both
// sides.
func (j *Validate) compare(ctx context.Context, group string, id domain.Identifier) []Discrepancy {
	versions, err := j.source.ListVersions(ctx, group, id)
	if err != nil {
		return []Discrepancy{{Post: id.Path(), Kind: Unreadable, Detail: err.Error()}}
	}
	languages, err := j.source.ListLanguages(ctx, group, id, domain.LiveVersion(versions))
	if err != nil {
		return []Discrepancy{{Post: id.Path(), Kind: Unreadable, Detail: err.Error()}}
	}

	var out []Discrepancy
	for _, lang := range languages {
		want, err := contentHash(ctx, j.source, group, id, lang)
		if err != nil {
			out = append(out, Discrepancy{Post: id.Path(), Language: lang, Kind: Unreadable, Detail: "source: " + err.Error()})
			continue
		}
		got, err := contentHash(ctx, j.target, group, id, lang)
		if err != nil {
			out = append(out, Discrepancy{Post: id.Path(), Language: lang, Kind: MissingInTarget, Detail: err.Error()})
			continue
		}
		if want != got {
			out = append(out, Discrepancy{Post: id.Path(), Language: lang, Kind: ContentMismatch,
				Detail: fmt.Sprintf("source %s, target %s", want[:12], got[:12])})
		}
	}
	return out
}

// contentHash digests the live file's title, status and body.
func contentHash(ctx context.Context, s domain.Storage, group string, id domain.Identifier, lang string) (string, error) {
	post, err := s.Read(ctx, group, id, lang, domain.LatestVersion)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00", post.Metadata.Title, post.Metadata.Status)
	h.Write([]byte(post.Content))
	return hex.EncodeToString(h.Sum(nil)), nil
}
