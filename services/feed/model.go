package feed

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type Post struct {
	ID         string         `gorm:"column:id;primaryKey" json:"id"`
	Slug       string         `gorm:"column:slug;uniqueIndex" json:"slug"`
	Title      string         `gorm:"column:title" json:"title"`
	Content    string         `gorm:"column:content" json:"content"`
	ImageURL   string         `gorm:"column:image_url" json:"imageUrl,omitempty"`
	ImageKey   string         `gorm:"column:image_key" json:"-"`
	Location   string         `gorm:"column:location" json:"location,omitempty"`
	AuthorName string         `gorm:"column:author_name" json:"author"`
	AuthorID   string         `gorm:"column:author_id;index" json:"authorId"`
	Public     bool           `gorm:"column:public;index" json:"public"`
	Tags       datatypes.JSON `gorm:"column:tags" json:"tags"`
	CreatedAt  time.Time      `gorm:"column:created_at;index" json:"createdAt"`
	UpdatedAt  time.Time      `gorm:"column:updated_at" json:"updatedAt"`
}

func (Post) TableName() string { return "feed_posts" }

func (p *Post) TagList() []string {
	var tags []string
	if len(p.Tags) > 0 {
		_ = json.Unmarshal(p.Tags, &tags)
	}
	return tags
}

type CreatePost struct {
	Title      string   `form:"title" json:"title" binding:"required,max=200"`
	Content    string   `form:"content" json:"content" binding:"required"`
	AuthorName string   `form:"author" json:"author" binding:"max=120"`
	Location   string   `form:"location" json:"location" binding:"max=200"`
	Tags       []string `form:"tags" json:"tags" binding:"max=20,dive,max=40"`
	Public     *bool    `form:"public" json:"public"`
}
