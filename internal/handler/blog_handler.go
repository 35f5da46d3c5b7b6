package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"leadintake-service/internal/model"
	"leadintake-service/pkg/logger"
	"leadintake-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BlogCategoryRequest is the create/update body for blog categories.
type BlogCategoryRequest struct {
	Name             string `json:"name" validate:"required"`
	Slug             string `json:"slug"`
	Description      string `json:"description"`
	FeaturedImageURL string `json:"featured_image_url"`
	IsActive         *bool  `json:"is_active"`
}

// BlogPostRequest is the create/update body for blog posts.
type BlogPostRequest struct {
	Title            string `json:"title" validate:"required"`
	Slug             string `json:"slug"`
	Excerpt          string `json:"excerpt"`
	Content          string `json:"content"`
	FeaturedImageURL string `json:"featured_image_url"`
	CategoryID       *uint  `json:"category_id"`
	MetaDescription  string `json:"meta_description"`
	MetaKeywords     string `json:"meta_keywords"`
	IsPublished      *bool  `json:"is_published"`
}

// slugify lowercases the input and collapses every non-alphanumeric run into
// a single hyphen.
func slugify(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// Driver errors that gorm does not translate.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint")
}

// CreateBlogCategory creates a blog category, generating a slug from the name
// when none is supplied.
func CreateBlogCategory(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordBlogOperation("create_category")

	var req BlogCategoryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Name is required"})
	}

	slug := req.Slug
	if slug == "" {
		slug = slugify(req.Name)
	}

	category := model.BlogCategory{
		Name:             req.Name,
		Slug:             slug,
		Description:      req.Description,
		FeaturedImageURL: req.FeaturedImageURL,
		IsActive:         true,
	}
	if req.IsActive != nil {
		category.IsActive = *req.IsActive
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	if err := db.Create(&category).Error; err != nil {
		if isDuplicateKey(err) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "A category with this name or slug already exists"})
		}
		log.Error("Failed to create blog category", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}

	log.Info("Blog category created",
		zap.Uint("category_id", category.ID),
		zap.String("slug", category.Slug))
	return c.JSON(http.StatusCreated, category)
}

// ListBlogCategories returns categories; by default only active ones, all of
// them with ?include_inactive=true.
func ListBlogCategories(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordBlogOperation("list_categories")

	defer prometheus.TrackDBOperation("query")(time.Now())

	query := db.Order("name asc")
	if c.QueryParam("include_inactive") != "true" {
		query = query.Where("is_active = ?", true)
	}

	var categories []model.BlogCategory
	if err := query.Find(&categories).Error; err != nil {
		log.Error("Failed to list blog categories", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"categories": categories,
		"count":      len(categories),
	})
}

// GetBlogCategory fetches a category by numeric id or slug.
func GetBlogCategory(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordBlogOperation("get_category")

	defer prometheus.TrackDBOperation("query")(time.Now())

	param := c.Param("idOrSlug")
	var category model.BlogCategory
	var err error
	if id, convErr := strconv.ParseUint(param, 10, 32); convErr == nil {
		err = db.First(&category, uint(id)).Error
	} else {
		err = db.Where("slug = ?", param).First(&category).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Category not found"})
		}
		log.Error("Failed to get blog category", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}
	return c.JSON(http.StatusOK, category)
}

// UpdateBlogCategory updates an existing category.
func UpdateBlogCategory(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordBlogOperation("update_category")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid category ID"})
	}

	var req BlogCategoryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	var category model.BlogCategory
	if err := db.First(&category, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Category not found"})
		}
		log.Error("Failed to load blog category", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}

	if req.Name != "" {
		category.Name = req.Name
	}
	if req.Slug != "" {
		category.Slug = req.Slug
	}
	category.Description = req.Description
	category.FeaturedImageURL = req.FeaturedImageURL
	if req.IsActive != nil {
		category.IsActive = *req.IsActive
	}

	if err := db.Save(&category).Error; err != nil {
		if isDuplicateKey(err) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "A category with this name or slug already exists"})
		}
		log.Error("Failed to update blog category", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}

	log.Info("Blog category updated", zap.Uint("category_id", category.ID))
	return c.JSON(http.StatusOK, category)
}

// DeleteBlogCategory removes a category. Posts keep their rows; their
// category reference is cleared.
func DeleteBlogCategory(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordBlogOperation("delete_category")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid category ID"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())

	if err := db.Model(&model.BlogPost{}).
		Where("category_id = ?", uint(id)).
		Update("category_id", nil).Error; err != nil {
		log.Error("Failed to detach posts from category", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}

	result := db.Delete(&model.BlogCategory{}, uint(id))
	if result.Error != nil {
		log.Error("Failed to delete blog category", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}
	if result.RowsAffected == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Category not found"})
	}

	log.Info("Blog category deleted", zap.Uint64("category_id", id))
	return c.JSON(http.StatusOK, echo.Map{"message": "Category deleted successfully"})
}

// CreateBlogPost creates a post, generating a slug from the title when none
// is supplied. Publishing stamps published_at.
func CreateBlogPost(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordBlogOperation("create_post")

	var req BlogPostRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}
	if req.Title == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Title is required"})
	}

	slug := req.Slug
	if slug == "" {
		slug = slugify(req.Title)
	}

	post := model.BlogPost{
		Title:            req.Title,
		Slug:             slug,
		Excerpt:          req.Excerpt,
		Content:          req.Content,
		FeaturedImageURL: req.FeaturedImageURL,
		CategoryID:       req.CategoryID,
		MetaDescription:  req.MetaDescription,
		MetaKeywords:     req.MetaKeywords,
	}
	if req.IsPublished != nil && *req.IsPublished {
		now := time.Now()
		post.IsPublished = true
		post.PublishedAt = &now
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	if err := db.Create(&post).Error; err != nil {
		if isDuplicateKey(err) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "A post with this slug already exists"})
		}
		log.Error("Failed to create blog post", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}

	log.Info("Blog post created",
		zap.Uint("post_id", post.ID),
		zap.String("slug", post.Slug))
	return c.JSON(http.StatusCreated, post)
}

// ListBlogPosts returns posts newest first; by default only published ones,
// all of them with ?include_unpublished=true. Optional ?category_id filter.
func ListBlogPosts(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordBlogOperation("list_posts")

	defer prometheus.TrackDBOperation("query")(time.Now())

	query := db.Order("created_at desc")
	if c.QueryParam("include_unpublished") != "true" {
		query = query.Where("is_published = ?", true)
	}
	if raw := c.QueryParam("category_id"); raw != "" {
		categoryID, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid category ID"})
		}
		query = query.Where("category_id = ?", uint(categoryID))
	}

	var posts []model.BlogPost
	if err := query.Find(&posts).Error; err != nil {
		log.Error("Failed to list blog posts", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"posts": posts,
		"count": len(posts),
	})
}

// GetBlogPostBySlug fetches a published post by slug. Unpublished posts stay
// hidden on this path.
func GetBlogPostBySlug(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordBlogOperation("get_post")

	defer prometheus.TrackDBOperation("query")(time.Now())

	var post model.BlogPost
	err := db.Where("slug = ? AND is_published = ?", c.Param("slug"), true).First(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Post not found"})
		}
		log.Error("Failed to get blog post", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}
	return c.JSON(http.StatusOK, post)
}

// UpdateBlogPost updates an existing post. Publishing for the first time
// stamps published_at; unpublishing clears it.
func UpdateBlogPost(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordBlogOperation("update_post")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid post ID"})
	}

	var req BlogPostRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	var post model.BlogPost
	if err := db.First(&post, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Post not found"})
		}
		log.Error("Failed to load blog post", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}

	if req.Title != "" {
		post.Title = req.Title
	}
	if req.Slug != "" {
		post.Slug = req.Slug
	}
	post.Excerpt = req.Excerpt
	post.Content = req.Content
	post.FeaturedImageURL = req.FeaturedImageURL
	post.CategoryID = req.CategoryID
	post.MetaDescription = req.MetaDescription
	post.MetaKeywords = req.MetaKeywords
	if req.IsPublished != nil {
		if *req.IsPublished && !post.IsPublished {
			now := time.Now()
			post.PublishedAt = &now
		}
		if !*req.IsPublished {
			post.PublishedAt = nil
		}
		post.IsPublished = *req.IsPublished
	}

	if err := db.Save(&post).Error; err != nil {
		if isDuplicateKey(err) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "A post with this slug already exists"})
		}
		log.Error("Failed to update blog post", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}

	log.Info("Blog post updated", zap.Uint("post_id", post.ID))
	return c.JSON(http.StatusOK, post)
}

// DeleteBlogPost removes a post.
func DeleteBlogPost(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordBlogOperation("delete_post")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid post ID"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())

	result := db.Delete(&model.BlogPost{}, uint(id))
	if result.Error != nil {
		log.Error("Failed to delete blog post", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}
	if result.RowsAffected == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Post not found"})
	}

	log.Info("Blog post deleted", zap.Uint64("post_id", id))
	return c.JSON(http.StatusOK, echo.Map{"message": "Post deleted successfully"})
}

// TrackBlogPostView bumps a post's view counter, rate-limited per client IP
// so refresh storms do not inflate the count.
func TrackBlogPostView(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordBlogOperation("track_post_view")

	slug := c.Param("slug")
	key := "blog:" + slug + "|" + c.RealIP()
	if !views.Allow(key) {
		return c.JSON(http.StatusOK, echo.Map{"message": "View already counted"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	result := db.Model(&model.BlogPost{}).
		Where("slug = ? AND is_published = ?", slug, true).
		Update("view_count", gorm.Expr("view_count + 1"))
	if result.Error != nil {
		log.Error("Failed to track blog post view", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}
	if result.RowsAffected == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Post not found"})
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "View counted"})
}
