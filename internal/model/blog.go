package model

import "time"

// BlogCategory groups blog posts. Name and slug are unique across the table.
type BlogCategory struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	Name             string    `json:"name" gorm:"type:varchar(100);uniqueIndex;not null"`
	Slug             string    `json:"slug" gorm:"type:varchar(100);uniqueIndex;not null"`
	Description      string    `json:"description,omitempty" gorm:"type:text"`
	FeaturedImageURL string    `json:"featured_image_url,omitempty" gorm:"type:varchar(500)"`
	IsActive         bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	Posts []BlogPost `json:"posts,omitempty" gorm:"foreignKey:CategoryID"`
}

// BlogPost is a single article. Unpublished posts are only visible through
// the admin listing, never by slug on the public path.
type BlogPost struct {
	ID               uint       `json:"id" gorm:"primaryKey"`
	Title            string     `json:"title" gorm:"type:varchar(255);not null"`
	Slug             string     `json:"slug" gorm:"type:varchar(255);uniqueIndex;not null"`
	Excerpt          string     `json:"excerpt,omitempty" gorm:"type:text"`
	Content          string     `json:"content,omitempty" gorm:"type:text"`
	FeaturedImageURL string     `json:"featured_image_url,omitempty" gorm:"type:varchar(500)"`
	CategoryID       *uint      `json:"category_id,omitempty" gorm:"index"`
	MetaDescription  string     `json:"meta_description,omitempty" gorm:"type:varchar(500)"`
	MetaKeywords     string     `json:"meta_keywords,omitempty" gorm:"type:varchar(255)"`
	IsPublished      bool       `json:"is_published" gorm:"not null;default:false"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
	ViewCount        int        `json:"view_count" gorm:"not null;default:0"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
