package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"leadintake-service/internal/dealflow"
	"leadintake-service/internal/store"
	"leadintake-service/pkg/logger"
	"leadintake-service/prometheus"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CategoryRequest is one requested service category within an intake
// submission.
type CategoryRequest struct {
	Name              string           `json:"name" validate:"required"`
	EventDate         string           `json:"event_date"`
	Venue             string           `json:"venue"`
	Budget            *decimal.Decimal `json:"budget"`
	ExpectedGathering *int             `json:"expected_gathering"`
}

// DealRequest is the bulk-create and plain-update request body.
type DealRequest struct {
	Name          string            `json:"name" validate:"required"`
	ContactNumber string            `json:"contact_number" validate:"required"`
	Categories    []CategoryRequest `json:"categories" validate:"required"`
}

// DealInitRequest starts the two-step intake with just a contact number.
type DealInitRequest struct {
	ContactNumber string `json:"contact_number" validate:"required"`
}

// DealUpdateRequest is the second step of the two-step intake; the contact
// number was already captured during initialization.
type DealUpdateRequest struct {
	Name       string            `json:"name" validate:"required"`
	Categories []CategoryRequest `json:"categories" validate:"required"`
}

// toCategorySpecs validates and converts the request categories.
func toCategorySpecs(categories []CategoryRequest) ([]store.CategorySpec, error) {
	specs := make([]store.CategorySpec, 0, len(categories))
	for i, cat := range categories {
		if cat.Name == "" {
			return nil, fmt.Errorf("category %d: name is required", i+1)
		}
		if cat.Budget != nil && cat.Budget.IsNegative() {
			return nil, fmt.Errorf("category %q: budget must be positive or zero", cat.Name)
		}
		if cat.ExpectedGathering != nil && *cat.ExpectedGathering <= 0 {
			return nil, fmt.Errorf("category %q: expected gathering must be positive", cat.Name)
		}

		spec := store.CategorySpec{
			Name:              cat.Name,
			Venue:             cat.Venue,
			ExpectedGathering: cat.ExpectedGathering,
		}
		if cat.Budget != nil {
			spec.Budget = decimal.NewNullDecimal(*cat.Budget)
		}
		if cat.EventDate != "" {
			date, err := time.Parse("2006-01-02", cat.EventDate)
			if err != nil {
				return nil, fmt.Errorf("category %q: event date must be in YYYY-MM-DD format", cat.Name)
			}
			spec.EventDate = &date
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// dealError maps the orchestrator error taxonomy onto HTTP responses so a
// client can tell "retry is safe" from "this id is done".
func dealError(c echo.Context, log *zap.Logger, err error) error {
	switch {
	case errors.Is(err, store.ErrDealNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Deal not found"})
	case errors.Is(err, store.ErrAlreadyConfigured):
		return c.JSON(http.StatusConflict, echo.Map{"error": "Deal has already been fully configured"})
	case errors.Is(err, dealflow.ErrNoCategories):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "At least one category is required"})
	default:
		log.Error("Deal operation failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}
}

// CreateDeals creates one deal per submitted category in a single call.
func CreateDeals(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordDealOperation("create")

	var req DealRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}
	if req.Name == "" || req.ContactNumber == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Name and contact number are required"})
	}
	if len(req.Categories) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "At least one category is required"})
	}

	specs, err := toCategorySpecs(req.Categories)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	log.Info("Creating deals",
		zap.String("name", req.Name),
		zap.String("contact_number", req.ContactNumber),
		zap.Int("categories", len(specs)))

	defer prometheus.TrackDBOperation("insert")(time.Now())

	message, deals, err := flow.CreateDeals(req.Name, req.ContactNumber, specs)
	if err != nil {
		return dealError(c, log, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"message": message,
		"deals":   deals,
	})
}

// InitializeDeal starts the two-step intake. Safe to retry; repeated calls
// with the same contact number return the same deal id.
func InitializeDeal(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordDealOperation("initialize")

	var req DealInitRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}
	if req.ContactNumber == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Contact number is required"})
	}

	dealID, err := flow.InitializeDeal(req.ContactNumber)
	if err != nil {
		return dealError(c, log, err)
	}

	log.Info("Deal initialized",
		zap.Uint("deal_id", dealID),
		zap.String("contact_number", req.ContactNumber))

	return c.JSON(http.StatusCreated, echo.Map{
		"deal_id": dealID,
		"message": "Deal processed successfully with contact number: " + req.ContactNumber,
	})
}

// UpdateDealDetails completes the two-step intake: it promotes the
// initialized deal with the first category and fans remaining categories out
// into new deals.
func UpdateDealDetails(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordDealOperation("configure")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid deal ID"})
	}

	var req DealUpdateRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Name is required"})
	}
	if len(req.Categories) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "At least one category is required"})
	}

	specs, err := toCategorySpecs(req.Categories)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	log.Info("Configuring deal",
		zap.Uint64("deal_id", id),
		zap.String("name", req.Name),
		zap.Int("categories", len(specs)))

	deal, err := flow.UpdateDealWithoutContactNumber(uint(id), req.Name, specs)
	if err != nil {
		return dealError(c, log, err)
	}

	return c.JSON(http.StatusOK, deal)
}

// UpdateDeal replaces a deal's fields unconditionally from request data.
func UpdateDeal(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordDealOperation("update")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid deal ID"})
	}

	var req DealRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}
	if req.Name == "" || req.ContactNumber == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Name and contact number are required"})
	}
	if len(req.Categories) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "At least one category is required"})
	}

	specs, err := toCategorySpecs(req.Categories)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	// A plain update takes a single category.
	deal, err := flow.UpdateDeal(uint(id), req.Name, req.ContactNumber, specs[0])
	if err != nil {
		return dealError(c, log, err)
	}

	log.Info("Deal updated", zap.Uint("deal_id", deal.ID))
	return c.JSON(http.StatusOK, deal)
}

// GetDeal retrieves a single deal by ID.
func GetDeal(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordDealOperation("get")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid deal ID"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	deal, err := flow.GetDeal(uint(id))
	if err != nil {
		return dealError(c, log, err)
	}
	return c.JSON(http.StatusOK, deal)
}

// ListDeals retrieves deals, optionally filtered by name, contact number or
// category.
func ListDeals(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordDealOperation("list")

	defer prometheus.TrackDBOperation("query")(time.Now())

	deals, err := flow.ListDeals(
		c.QueryParam("name"),
		c.QueryParam("contact_number"),
		c.QueryParam("category"),
	)
	if err != nil {
		return dealError(c, log, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"deals": deals,
		"count": len(deals),
	})
}

// DeleteDeal removes a single deal.
func DeleteDeal(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordDealOperation("delete")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid deal ID"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())

	deleted, err := flow.DeleteDeal(uint(id))
	if err != nil {
		return dealError(c, log, err)
	}
	if !deleted {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Deal not found"})
	}

	log.Info("Deal deleted", zap.Uint64("deal_id", id))
	return c.JSON(http.StatusOK, echo.Map{"message": "Deal deleted successfully"})
}

// DeleteDealsByName removes every deal for a user name and reports the count.
func DeleteDealsByName(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordDealOperation("delete_by_name")

	name := c.Param("name")
	if name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Name is required"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())

	count, err := flow.DeleteDealsByUserName(name)
	if err != nil {
		return dealError(c, log, err)
	}

	log.Info("Deals deleted by name",
		zap.String("name", name),
		zap.Int64("count", count))
	return c.JSON(http.StatusOK, echo.Map{
		"message":       fmt.Sprintf("Deleted %d deal(s) for user %s", count, name),
		"deleted_count": count,
	})
}
