package handler

import (
	"net/http"
	"strconv"
	"time"

	"leadintake-service/internal/model"
	"leadintake-service/pkg/logger"
	"leadintake-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

// PageViewRequest describes one visit to track.
type PageViewRequest struct {
	PagePath string `json:"page_path" validate:"required"`
	PageType string `json:"page_type"`
	EntityID *uint  `json:"entity_id"`
	Referrer string `json:"referrer"`
}

// pageViewCounts returns the total and unique-visitor counts for a path.
func pageViewCounts(path string) (total int64, unique int64, err error) {
	if err = db.Model(&model.PageView{}).
		Where("page_path = ?", path).
		Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err = db.Model(&model.PageView{}).
		Where("page_path = ?", path).
		Distinct("ip_address").
		Count(&unique).Error; err != nil {
		return 0, 0, err
	}
	return total, unique, nil
}

// TrackPageView records a visit. Each (path, ip) pair counts once: the
// in-process cache absorbs rapid repeats and the unique index settles races.
// A duplicate is not an error.
func TrackPageView(c echo.Context) error {
	log := logger.FromContext(c)

	var req PageViewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}
	if req.PagePath == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Page path is required"})
	}

	ip := c.RealIP()
	tracked := false

	if views.Allow(req.PagePath + "|" + ip) {
		view := model.PageView{
			PagePath:  req.PagePath,
			PageType:  req.PageType,
			EntityID:  req.EntityID,
			IPAddress: ip,
			UserAgent: c.Request().UserAgent(),
			Referrer:  req.Referrer,
			ViewedAt:  time.Now(),
		}

		defer prometheus.TrackDBOperation("insert")(time.Now())

		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "page_path"}, {Name: "ip_address"}},
			DoNothing: true,
		}).Create(&view)
		if result.Error != nil {
			log.Error("Failed to track page view", zap.Error(result.Error))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
		}
		tracked = result.RowsAffected > 0
	}
	prometheus.RecordPageView(tracked)

	total, unique, err := pageViewCounts(req.PagePath)
	if err != nil {
		log.Error("Failed to count page views", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"tracked":         tracked,
		"total_views":     total,
		"unique_visitors": unique,
	})
}

// GetPageViewCounts returns counts for a path supplied as ?path=.
func GetPageViewCounts(c echo.Context) error {
	log := logger.FromContext(c)

	path := c.QueryParam("path")
	if path == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Path is required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	total, unique, err := pageViewCounts(path)
	if err != nil {
		log.Error("Failed to count page views", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"page_path":       path,
		"total_views":     total,
		"unique_visitors": unique,
	})
}

// GetEntityViewCounts returns counts grouped under a (page type, entity id)
// pair, e.g. all views of blog post 7 regardless of path variants.
func GetEntityViewCounts(c echo.Context) error {
	log := logger.FromContext(c)

	pageType := c.Param("type")
	entityID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid entity ID"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var total int64
	if err := db.Model(&model.PageView{}).
		Where("page_type = ? AND entity_id = ?", pageType, uint(entityID)).
		Count(&total).Error; err != nil {
		log.Error("Failed to count entity views", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}

	var unique int64
	if err := db.Model(&model.PageView{}).
		Where("page_type = ? AND entity_id = ?", pageType, uint(entityID)).
		Distinct("ip_address").
		Count(&unique).Error; err != nil {
		log.Error("Failed to count entity views", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"page_type":       pageType,
		"entity_id":       entityID,
		"total_views":     total,
		"unique_visitors": unique,
	})
}
