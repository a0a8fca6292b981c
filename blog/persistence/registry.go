package persistence

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/dfryer1193/publog/blog/domain"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	_ domain.GroupRepository = (*Registry)(nil)
	_ domain.LanguageService = (*Registry)(nil)
)

// RegistryFile is the on-disk shape of the group and language registry.
type RegistryFile struct {
	DefaultLanguage string         `yaml:"default_language" validate:"required"`
	Languages       []string       `yaml:"languages" validate:"required,min=1,dive,required"`
	Groups          []domain.Group `yaml:"groups" validate:"dive"`
}

// Registry serves groups and languages from a YAML file. It is safe for
// concurrent use and can be reloaded in place.
type Registry struct {
	mu   sync.RWMutex
	file RegistryFile
}

// NewRegistry validates file and wraps it.
func NewRegistry(file RegistryFile) (*Registry, error) {
	if err := validateRegistry(file); err != nil {
		return nil, err
	}
	return &Registry{file: file}, nil
}

// LoadRegistry reads and validates a registry file.
func LoadRegistry(path string) (*Registry, error) {
	file, err := readRegistryFile(path)
	if err != nil {
		return nil, err
	}
	return &Registry{file: file}, nil
}

// Reload replaces the registry contents from path. On error the previous
// contents are kept.
func (r *Registry) Reload(path string) error {
	file, err := readRegistryFile(path)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.file = file
	r.mu.Unlock()
	return nil
}

func readRegistryFile(path string) (RegistryFile, error) {
	var file RegistryFile
	data, err := os.ReadFile(path)
	if err != nil {
		return file, fmt.Errorf("failed to read registry: %w", err)
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("failed to parse registry: %w", err)
	}
	if err := validateRegistry(file); err != nil {
		return file, err
	}
	return file, nil
}

func validateRegistry(file RegistryFile) error {
	if err := validator.New().Struct(file); err != nil {
		return fmt.Errorf("invalid registry: %w", err)
	}

	seen := make(map[string]bool, len(file.Groups))
	for _, g := range file.Groups {
		if seen[g.Slug] {
			return fmt.Errorf("invalid registry: duplicate group slug %q", g.Slug)
		}
		seen[g.Slug] = true
	}
	if !slices.Contains(file.Languages, file.DefaultLanguage) {
		return fmt.Errorf("invalid registry: default language %q is not enabled", file.DefaultLanguage)
	}
	return nil
}

// ListGroups implements domain.GroupRepository.ListGroups
func (r *Registry) ListGroups(ctx context.Context) ([]domain.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.file.Groups), nil
}

// GetGroup implements domain.GroupRepository.GetGroup
func (r *Registry) GetGroup(ctx context.Context, slug string) (*domain.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, g := range r.file.Groups {
		if g.Slug == slug {
			group := g
			return &group, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", slug, domain.ErrGroupNotFound)
}

// DefaultLanguage implements domain.LanguageService.DefaultLanguage
func (r *Registry) DefaultLanguage() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.file.DefaultLanguage
}

// EnabledLanguages implements domain.LanguageService.EnabledLanguages
func (r *Registry) EnabledLanguages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.file.Languages)
}
