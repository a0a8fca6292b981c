package api

import "time"

// NoticeNotFound marks a fallback redirect: the requested page was missing
// and the client is shown the closest match.
const NoticeNotFound = "not-found"

type Post struct {
	Group              string    `json:"group"`
	Path               string    `json:"path"`
	Title              string    `json:"title"`
	Description        string    `json:"description,omitempty"`
	Language           string    `json:"language"`
	Version            int       `json:"version"`
	AvailableLanguages []string  `json:"available_languages"`
	AvailableVersions  []int     `json:"available_versions"`
	PublishedAt        time.Time `json:"published_at"`
	HTML               string    `json:"html"`
	Notice             string    `json:"notice,omitempty"`
}

type ListingEntry struct {
	Title       string    `json:"title"`
	Excerpt     string    `json:"excerpt"`
	Language    string    `json:"language"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

type Listing struct {
	Group    string         `json:"group"`
	Date     string         `json:"date,omitempty"`
	Language string         `json:"language"`
	Posts    []ListingEntry `json:"posts"`
	Notice   string         `json:"notice,omitempty"`
}

type JobResult struct {
	JobID     string   `json:"job_id"`
	Job       string   `json:"job"`
	Group     string   `json:"group"`
	Total     int      `json:"total"`
	Succeeded int      `json:"succeeded"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
	Report    any      `json:"report,omitempty"`
	Error     string   `json:"error,omitempty"`
}
