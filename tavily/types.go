package tavily

import (
	"encoding/json"
	"strconv"
	"time"
)

type SearchDepth string

const (
	SearchDepthBasic    SearchDepth = "basic"
	SearchDepthAdvanced SearchDepth = "advanced"
)

type Topic string

const (
	TopicGeneral Topic = "general"
	TopicNews    Topic = "news"
	TopicFinance Topic = "finance"
)

type TimeRange string

const (
	TimeRangeDay   TimeRange = "day"
	TimeRangeWeek  TimeRange = "week"
	TimeRangeMonth TimeRange = "month"
	TimeRangeYear  TimeRange = "year"
)

// AnswerMode selects the generated answer. The zero value sends false.
type AnswerMode string

const (
	AnswerNone     AnswerMode = ""
	AnswerBasic    AnswerMode = "basic"
	AnswerAdvanced AnswerMode = "advanced"
)

func (m AnswerMode) MarshalJSON() ([]byte, error) {
	if m == AnswerNone {
		return []byte("false"), nil
	}
	return json.Marshal(string(m))
}

type ExtractDepth string

const (
	ExtractDepthBasic    ExtractDepth = "basic"
	ExtractDepthAdvanced ExtractDepth = "advanced"
)

type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

// Category narrows crawl and map runs to a kind of page.
type Category string

const (
	CategoryAbout          Category = "About"
	CategoryAuthentication Category = "Authentication"
	CategoryBlog           Category = "Blog"
	CategoryBlogs          Category = "Blogs"
	CategoryCareers        Category = "Careers"
	CategoryCommunity      Category = "Community"
	CategoryContact        Category = "Contact"
	CategoryDeveloper      Category = "Developer"
	CategoryDevelopers     Category = "Developers"
	CategoryDocumentation  Category = "Documentation"
	CategoryDownloads      Category = "Downloads"
	CategoryECommerce      Category = "E-Commerce"
	CategoryEnterprise     Category = "Enterprise"
	CategoryEvents         Category = "Events"
	CategoryMedia          Category = "Media"
	CategoryPartners       Category = "Partners"
	CategoryPeople         Category = "People"
	CategoryPricing        Category = "Pricing"
	CategoryPrivacy        Category = "Privacy"
	CategorySolutions      Category = "Solutions"
	CategoryStatus         Category = "Status"
	CategoryTerms          Category = "Terms"
)

type ResearchModel string

const (
	ResearchModelMini ResearchModel = "mini"
	ResearchModelPro  ResearchModel = "pro"
	ResearchModelAuto ResearchModel = "auto"
)

type CitationFormat string

const (
	CitationNumbered CitationFormat = "numbered"
	CitationMLA      CitationFormat = "mla"
	CitationAPA      CitationFormat = "apa"
	CitationChicago  CitationFormat = "chicago"
)

// Seconds accepts response_time both as a JSON number and as a numeric string.
type Seconds float64

func (s *Seconds) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*s = Seconds(f)
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return err
	}
	*s = Seconds(f)
	return nil
}

func (s Seconds) Duration() time.Duration {
	return time.Duration(float64(s) * float64(time.Second))
}

type Usage struct {
	Credits float64 `json:"credits"`
}

// Image is either a bare URL or a URL with a description, depending on
// include_image_descriptions.
type Image struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

func (i *Image) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		i.URL = s
		return nil
	}
	type plain Image
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*i = Image(p)
	return nil
}

func boolPtr(b bool) *bool {
	return &b
}

// Bool returns a pointer to b, for optional request flags.
func Bool(b bool) *bool {
	return boolPtr(b)
}
