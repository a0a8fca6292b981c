package domain

import "context"

// Group is a named collection of posts sharing an identifier mode.
type Group struct {
	Name string `yaml:"name" validate:"required"`
	Slug string `yaml:"slug" validate:"required"`
	Mode Mode   `yaml:"mode" validate:"required,oneof=slug timestamp"`
	// PrimaryLanguage overrides the site default language for posts that
	// don't set their own.
	PrimaryLanguage string `yaml:"primary_language,omitempty"`

	SingularLabel string          `yaml:"singular_label,omitempty"`
	PluralLabel   string          `yaml:"plural_label,omitempty"`
	Icon          string          `yaml:"icon,omitempty"`
	Features      map[string]bool `yaml:"features,omitempty"`
}

// GroupRepository looks up configured groups. Groups are managed elsewhere
// and treated as read-only here.
type GroupRepository interface {
	// ListGroups returns groups in configured order.
	ListGroups(ctx context.Context) ([]Group, error)
	// GetGroup returns ErrGroupNotFound for unknown slugs.
	GetGroup(ctx context.Context, slug string) (*Group, error)
}

// LanguageService provides the site's language configuration.
type LanguageService interface {
	// DefaultLanguage is the site-wide default language code.
	DefaultLanguage() string
	// EnabledLanguages lists every enabled language code, dialects included.
	EnabledLanguages() []string
}
