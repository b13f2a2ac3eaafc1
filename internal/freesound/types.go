package freesound

import "strings"

const (
	DefaultBaseURL = "https://freesound.org/apiv2"

	// MaxPageSize is the largest page_size the search endpoint accepts.
	MaxPageSize     = 150
	DefaultPageSize = 15

	PreviewHQMP3 = "preview-hq-mp3"
	PreviewLQMP3 = "preview-lq-mp3"
	PreviewHQOGG = "preview-hq-ogg"
	PreviewLQOGG = "preview-lq-ogg"
)

// DefaultFields is the field list requested from search so a result carries
// everything the downloader and catalog need without a second request.
var DefaultFields = []string{
	"id", "name", "tags", "description", "username", "license", "type",
	"channels", "filesize", "bitrate", "bitdepth", "duration", "samplerate",
	"previews", "download",
}

// Sound is the subset of a Freesound sound instance this project uses.
type Sound struct {
	ID          int               `json:"id"`
	Name        string            `json:"name"`
	Tags        []string          `json:"tags,omitempty"`
	Description string            `json:"description,omitempty"`
	Username    string            `json:"username,omitempty"`
	License     string            `json:"license,omitempty"`
	Type        string            `json:"type,omitempty"`
	Channels    int               `json:"channels,omitempty"`
	Filesize    int64             `json:"filesize,omitempty"`
	Bitrate     float64           `json:"bitrate,omitempty"`
	Bitdepth    int               `json:"bitdepth,omitempty"`
	Duration    float64           `json:"duration,omitempty"`
	Samplerate  float64           `json:"samplerate,omitempty"`
	Previews    map[string]string `json:"previews,omitempty"`
	Download    string            `json:"download,omitempty"`
}

// PreviewURL returns the best available mp3 preview, then ogg.
func (s *Sound) PreviewURL() string {
	for _, key := range []string{PreviewHQMP3, PreviewLQMP3, PreviewHQOGG, PreviewLQOGG} {
		if u := s.Previews[key]; u != "" {
			return u
		}
	}
	return ""
}

type SearchParams struct {
	Query  string
	Filter string // e.g. `type:wav duration:[0 TO 5]`
	Sort   string // score, duration_desc, created_asc, ...
	Fields []string

	// PageSize is clamped to [1, MaxPageSize]; zero means DefaultPageSize.
	PageSize int

	// MaxResults stops SearchAll after this many sounds; zero means no limit.
	MaxResults int
}

func (p SearchParams) pageSize() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	}
	return p.PageSize
}

func (p SearchParams) fields() string {
	if len(p.Fields) == 0 {
		return strings.Join(DefaultFields, ",")
	}
	return strings.Join(p.Fields, ",")
}

// SearchPage is one page of /search/text/ results.
type SearchPage struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []Sound `json:"results"`
}

func (p *SearchPage) HasNext() bool {
	return p.Next != nil && *p.Next != ""
}
