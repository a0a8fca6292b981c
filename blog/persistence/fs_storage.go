package persistence

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/dfryer1193/publog/blog/domain"
	"github.com/google/uuid"
)

var _ domain.Store = (*FileSystemStorage)(nil)

var versionDirRegex = regexp.MustCompile(`^v(\d+)$`)

// FileSystemStorage implements domain.Store over a content tree laid out as
// {group}/{identifier}/[v{N}/]{language}.phk.
type FileSystemStorage struct {
	root      string
	groups    domain.GroupRepository
	languages domain.LanguageService
}

// NewFileSystemStorage creates a storage rooted at root. The group repository
// and language service supply primary-language defaults.
func NewFileSystemStorage(root string, groups domain.GroupRepository, languages domain.LanguageService) *FileSystemStorage {
	return &FileSystemStorage{
		root:      root,
		groups:    groups,
		languages: languages,
	}
}

// Root returns the content root directory.
func (s *FileSystemStorage) Root() string {
	return s.root
}

func (s *FileSystemStorage) postDir(group string, id domain.Identifier) string {
	return filepath.Join(s.root, group, filepath.FromSlash(id.Path()))
}

func (s *FileSystemStorage) versionDir(group string, id domain.Identifier, version int) string {
	dir := s.postDir(group, id)
	if version == domain.LegacyVersion {
		return dir
	}
	return filepath.Join(dir, "v"+strconv.Itoa(version))
}

// relativePath returns the slash-separated path of a language file relative
// to the content root.
func relativePath(group string, id domain.Identifier, language string, version int) string {
	parts := []string{group, id.Path()}
	if version != domain.LegacyVersion {
		parts = append(parts, "v"+strconv.Itoa(version))
	}
	parts = append(parts, language+FileExtension)
	return strings.Join(parts, "/")
}

// ListPosts implements domain.Storage.ListPosts
func (s *FileSystemStorage) ListPosts(ctx context.Context, group *domain.Group) ([]domain.Identifier, error) {
	groupDir := filepath.Join(s.root, group.Slug)
	entries, err := readDirs(groupDir)
	if err != nil {
		return nil, err
	}

	var ids []domain.Identifier
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch group.Mode {
		case domain.ModeTimestamp:
			if !domain.IsDate(entry) {
				continue
			}
			times, err := s.ListTimes(ctx, group.Slug, entry)
			if err != nil {
				return nil, err
			}
			for _, t := range times {
				ids = append(ids, domain.TimestampIdentifier{Date: entry, Time: t})
			}
		default:
			ids = append(ids, domain.SlugIdentifier{Slug: entry})
		}
	}

	return ids, nil
}

// ListTimes implements domain.Storage.ListTimes
func (s *FileSystemStorage) ListTimes(ctx context.Context, group, date string) ([]string, error) {
	entries, err := readDirs(filepath.Join(s.root, group, date))
	if err != nil {
		return nil, err
	}

	times := make([]string, 0, len(entries))
	for _, entry := range entries {
		if domain.IsTime(entry) {
			times = append(times, entry)
		}
	}
	sort.Strings(times)
	return times, nil
}

// ListVersions implements domain.Storage.ListVersions
func (s *FileSystemStorage) ListVersions(ctx context.Context, group string, id domain.Identifier) ([]int, error) {
	entries, err := readDirs(s.postDir(group, id))
	if err != nil {
		return nil, err
	}

	versions := make([]int, 0, len(entries))
	for _, entry := range entries {
		m := versionDirRegex.FindStringSubmatch(entry)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			continue
		}
		versions = append(versions, n)
	}
	sort.Ints(versions)
	return versions, nil
}

// DetectStructure implements domain.Storage.DetectStructure
func (s *FileSystemStorage) DetectStructure(ctx context.Context, group string, id domain.Identifier) (domain.Structure, error) {
	versions, err := s.ListVersions(ctx, group, id)
	if err != nil {
		return domain.StructureEmpty, err
	}
	if len(versions) > 0 {
		return domain.StructureVersioned, nil
	}

	languages, err := s.ListLanguages(ctx, group, id, domain.LegacyVersion)
	if err != nil {
		return domain.StructureEmpty, err
	}
	if len(languages) > 0 {
		return domain.StructureLegacy, nil
	}
	return domain.StructureEmpty, nil
}

// ListLanguages implements domain.Storage.ListLanguages
func (s *FileSystemStorage) ListLanguages(ctx context.Context, group string, id domain.Identifier, version int) ([]string, error) {
	dir := s.versionDir(group, id, version)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, &domain.IOError{Path: dir, Err: err}
	}

	languages := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != FileExtension {
			continue
		}
		languages = append(languages, strings.TrimSuffix(entry.Name(), FileExtension))
	}
	sort.Strings(languages)
	return languages, nil
}

// resolveVersion turns LatestVersion into a concrete version number.
func (s *FileSystemStorage) resolveVersion(ctx context.Context, group string, id domain.Identifier, version int) (int, []int, error) {
	versions, err := s.ListVersions(ctx, group, id)
	if err != nil {
		return 0, nil, err
	}
	if version != domain.LatestVersion {
		return version, versions, nil
	}
	if len(versions) > 0 {
		return domain.LiveVersion(versions), versions, nil
	}
	return domain.LegacyVersion, versions, nil
}

// Read implements domain.Storage.Read
func (s *FileSystemStorage) Read(ctx context.Context, group string, id domain.Identifier, language string, version int) (*domain.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	version, versions, err := s.resolveVersion(ctx, group, id, version)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(s.versionDir(group, id, version), language+FileExtension)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", relativePath(group, id, language, version), domain.ErrPostNotFound)
		}
		return nil, &domain.IOError{Path: path, Err: err}
	}

	meta, body, err := decodeDocument(data)
	if err != nil {
		return nil, &domain.ParseError{Path: path, Err: err}
	}

	languages, err := s.ListLanguages(ctx, group, id, version)
	if err != nil {
		return nil, err
	}

	return &domain.Post{
		Group:              group,
		Identifier:         id,
		Language:           language,
		Version:            version,
		Metadata:           meta,
		Content:            body,
		Path:               relativePath(group, id, language, version),
		IsLegacyStructure:  version == domain.LegacyVersion,
		AvailableLanguages: languages,
		AvailableVersions:  versions,
	}, nil
}

// PrimaryLanguage implements domain.Storage.PrimaryLanguage
func (s *FileSystemStorage) PrimaryLanguage(ctx context.Context, group string, id domain.Identifier, version int) (string, error) {
	version, _, err := s.resolveVersion(ctx, group, id, version)
	if err != nil {
		return "", err
	}

	languages, err := s.ListLanguages(ctx, group, id, version)
	if err != nil {
		return "", err
	}

	for _, lang := range languages {
		post, err := s.Read(ctx, group, id, lang, version)
		if err != nil {
			continue
		}
		if post.Metadata.PrimaryLanguage != "" {
			return post.Metadata.PrimaryLanguage, nil
		}
	}

	return defaultPrimaryLanguage(ctx, s.groups, s.languages, group), nil
}

// Write implements domain.Writer.Write
func (s *FileSystemStorage) Write(ctx context.Context, post *domain.Post) error {
	if post == nil {
		return fmt.Errorf("post cannot be nil")
	}
	if post.Identifier == nil || post.Language == "" {
		return fmt.Errorf("post identifier and language cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := s.versionDir(post.Group, post.Identifier, post.Version)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create post directory: %w", err)
	}

	data, err := encodeDocument(post.Metadata, post.Content)
	if err != nil {
		return err
	}

	if err := WriteFileAtomic(filepath.Join(dir, post.Language+FileExtension), data, 0644); err != nil {
		return fmt.Errorf("failed to write post file: %w", err)
	}

	post.Path = relativePath(post.Group, post.Identifier, post.Language, post.Version)
	return nil
}

// PromoteToVersioned implements domain.Writer.PromoteToVersioned. Every
// legacy file is decoded before anything moves, and v1 appears in a single
// rename, so a failed promotion leaves the post fully legacy. A post whose
// legacy files outlived an earlier promotion has them moved now.
func (s *FileSystemStorage) PromoteToVersioned(ctx context.Context, group string, id domain.Identifier) error {
	legacy, err := s.ListLanguages(ctx, group, id, domain.LegacyVersion)
	if err != nil {
		return err
	}
	if len(legacy) == 0 {
		versions, err := s.ListVersions(ctx, group, id)
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			return fmt.Errorf("%s/%s: %w", group, id.Path(), domain.ErrPostNotFound)
		}
		return nil
	}

	files := make(map[string][]byte, len(legacy))
	for _, lang := range legacy {
		post, err := s.Read(ctx, group, id, lang, domain.LegacyVersion)
		if err != nil {
			return fmt.Errorf("failed to read %s before promotion: %w", lang, err)
		}
		post.Metadata.Version = 1
		data, err := encodeDocument(post.Metadata, post.Content)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", lang, err)
		}
		files[lang] = data
	}

	target := s.versionDir(group, id, 1)
	moved, err := s.ListLanguages(ctx, group, id, 1)
	if err != nil {
		return err
	}

	if _, err := os.Stat(target); errors.Is(err, fs.ErrNotExist) {
		if err := stageVersionDir(target, files); err != nil {
			return err
		}
	} else {
		// v1 holds an earlier promotion; copy only what it lacks.
		for lang, data := range files {
			if slices.Contains(moved, lang) {
				continue
			}
			if err := WriteFileAtomic(filepath.Join(target, lang+FileExtension), data, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", lang, err)
			}
		}
	}

	for _, lang := range legacy {
		path := filepath.Join(s.postDir(group, id), lang+FileExtension)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove legacy file %s: %w", path, err)
		}
	}
	return nil
}

// stageVersionDir writes files into a hidden sibling of target and renames
// it into place.
func stageVersionDir(target string, files map[string][]byte) error {
	tmp := fmt.Sprintf("%s.%s.tmp", target, uuid.NewString())
	if err := os.Mkdir(tmp, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	for lang, data := range files {
		if err := os.WriteFile(filepath.Join(tmp, lang+FileExtension), data, 0644); err != nil {
			os.RemoveAll(tmp)
			return fmt.Errorf("failed to stage %s: %w", lang, err)
		}
	}
	if err := os.Rename(tmp, target); err != nil {
		os.RemoveAll(tmp)
		return fmt.Errorf("failed to move %s into place: %w", target, err)
	}
	return nil
}

// WriteFileAtomic writes data to a uniquely named temporary file in the
// target directory and renames it into place, so readers observe either the
// old or the new file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := fmt.Sprintf("%s.%s.tmp", path, uuid.NewString())
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// readDirs returns the sorted names of subdirectories of dir. A missing dir
// yields an empty list.
func readDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, &domain.IOError{Path: dir, Err: err}
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// defaultPrimaryLanguage falls back from the group default to the site
// default to domain.DefaultLanguage.
func defaultPrimaryLanguage(ctx context.Context, groups domain.GroupRepository, languages domain.LanguageService, group string) string {
	if groups != nil {
		if g, err := groups.GetGroup(ctx, group); err == nil && g.PrimaryLanguage != "" {
			return g.PrimaryLanguage
		}
	}
	if languages != nil {
		if lang := languages.DefaultLanguage(); lang != "" {
			return lang
		}
	}
	return domain.DefaultLanguage
}
