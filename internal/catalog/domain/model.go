package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/toolhub/pkg/db/pagination"
	"gorm.io/datatypes"
)

// Tool is one entry of the AI tool directory.
type Tool struct {
	ID          snowflake.ID                `gorm:"primaryKey" json:"id"`
	Name        string                      `gorm:"type:text;not null" json:"name"`
	Slug        string                      `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	Description string                      `gorm:"type:text" json:"description"`
	Category    string                      `gorm:"type:text;not null;index" json:"category"`
	LogoURL     string                      `gorm:"column:logo_url;type:text" json:"logo_url"`
	WebsiteURL  string                      `gorm:"column:website_url;type:text" json:"website_url"`
	Pricing     string                      `gorm:"type:text" json:"pricing"`
	Tags        datatypes.JSONSlice[string] `gorm:"type:json" json:"tags"`
	IsApproved  bool                        `gorm:"not null;default:false;index" json:"is_approved"`
	IsFeatured  bool                        `gorm:"not null;default:false" json:"is_featured"`
	Views       int64                       `gorm:"not null;default:0" json:"views"`
	SubmittedBy *snowflake.ID               `json:"submitted_by,omitempty"`
	CreatedAt   time.Time                   `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time                   `gorm:"not null" json:"updated_at"`
}

func (Tool) TableName() string { return "ai_tools" }

type Category struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

type ListKind string

const (
	ListPopular  ListKind = "popular"
	ListTrending ListKind = "trending"
	ListNew      ListKind = "new"
	ListFeatured ListKind = "featured"
)

// TrendingWindow bounds how old a tool may be to trend.
const TrendingWindow = 30 * 24 * time.Hour

func (k ListKind) Valid() bool {
	switch k {
	case ListPopular, ListTrending, ListNew, ListFeatured:
		return true
	}
	return false
}

type ListRequest struct {
	Kind     ListKind
	Category string
	pagination.Pagination
}

type ListResponse struct {
	Tools    []*Tool             `json:"tools"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

// ListFilter is the repository form of a list request.
type ListFilter struct {
	Kind         ListKind
	Category     string
	CreatedAfter *time.Time
	Cursor       *pagination.Cursor
	Limit        int
	Approved     *bool
}

type SubmitRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	LogoURL     string   `json:"logo_url"`
	WebsiteURL  string   `json:"website_url"`
	Pricing     string   `json:"pricing"`
	Tags        []string `json:"tags"`
}
