package pipedrive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"leadintake-service/pkg/config"

	"github.com/shopspring/decimal"
)

// DealFields carries the custom-field payload pushed onto a Pipedrive deal
// once the client has supplied real details.
type DealFields struct {
	Category  string
	EventDate *time.Time
	Venue     string
	FullName  string
	Budget    decimal.NullDecimal
}

// Client is a stateless adapter for the Pipedrive v1 API. Every method is a
// single outbound call bounded by the HTTP client timeout; there is no retry
// loop and no local storage here. The caller decides whether a failure is
// fatal.
type Client struct {
	cfg        *config.PipedriveConfig
	httpClient *http.Client
}

// NewClient creates a Pipedrive client from configuration.
func NewClient(cfg *config.PipedriveConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// apiEnvelope is the common Pipedrive response wrapper.
type apiEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

// CreatePerson creates a person record in Pipedrive and returns its id.
func (c *Client) CreatePerson(name, contactNumber string) (string, error) {
	body := map[string]interface{}{
		"name":  name,
		"phone": contactNumber,
	}
	if c.cfg.OrgID != 0 {
		body["org_id"] = c.cfg.OrgID
	}
	// Person Source dropdown - persons from this service always come in as
	// website leads
	if c.cfg.PersonSourceField != "" {
		body[c.cfg.PersonSourceField] = "Website"
	}

	envelope, err := c.do(http.MethodPost, "/api/v1/persons", body, http.StatusCreated)
	if err != nil {
		return "", fmt.Errorf("create person: %w", err)
	}
	return envelope.Data.ID.String(), nil
}

// CreateDeal creates a deal in Pipedrive attached to the given person and
// returns the remote deal id.
func (c *Client) CreateDeal(remotePersonID, title string, value int64) (string, error) {
	body := map[string]interface{}{
		"title":     title,
		"value":     value,
		"currency":  "USD",
		"person_id": remotePersonID,
		"status":    "open",
	}
	if c.cfg.PipelineID != 0 {
		body["pipeline_id"] = c.cfg.PipelineID
	}
	if c.cfg.OrgID != 0 {
		body["org_id"] = c.cfg.OrgID
	}
	if c.cfg.DealSourceField != "" {
		body[c.cfg.DealSourceField] = c.cfg.DealSourceOptionID
	}

	envelope, err := c.do(http.MethodPost, "/api/v1/deals", body, http.StatusCreated)
	if err != nil {
		return "", fmt.Errorf("create deal: %w", err)
	}
	return envelope.Data.ID.String(), nil
}

// UpdateDealFields pushes the configured details onto an existing Pipedrive
// deal, retitling it to "<full name> - <category>".
func (c *Client) UpdateDealFields(remoteDealID string, fields DealFields) error {
	body := map[string]interface{}{
		"title": fields.FullName + " - " + fields.Category,
	}
	if c.cfg.EventTypeField != "" {
		body[c.cfg.EventTypeField] = fields.Category
	}
	if c.cfg.EventDateField != "" && fields.EventDate != nil {
		body[c.cfg.EventDateField] = fields.EventDate.Format("2006-01-02")
	}
	if c.cfg.VenueField != "" {
		body[c.cfg.VenueField] = fields.Venue
	}
	if c.cfg.FullNameField != "" {
		body[c.cfg.FullNameField] = fields.FullName
	}
	if c.cfg.DealSourceField != "" {
		body[c.cfg.DealSourceField] = c.cfg.DealSourceOptionID
	}
	if fields.Budget.Valid {
		body["value"] = fields.Budget.Decimal.IntPart()
	}

	if _, err := c.do(http.MethodPut, "/api/v1/deals/"+remoteDealID, body, http.StatusOK); err != nil {
		return fmt.Errorf("update deal fields: %w", err)
	}
	return nil
}

// UpdatePersonName renames a person in Pipedrive.
func (c *Client) UpdatePersonName(remotePersonID, name string) error {
	body := map[string]interface{}{
		"name": name,
	}
	if _, err := c.do(http.MethodPut, "/api/v1/persons/"+remotePersonID, body, http.StatusOK); err != nil {
		return fmt.Errorf("update person name: %w", err)
	}
	return nil
}

// do performs one JSON request against the Pipedrive API and decodes the
// response envelope.
func (c *Client) do(method, path string, body map[string]interface{}, wantStatus int) (*apiEnvelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := c.cfg.BaseURL + path + "?api_token=" + c.cfg.APIToken
	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != wantStatus {
		return nil, fmt.Errorf("pipedrive returned %d: %s", resp.StatusCode, string(respBody))
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode pipedrive response: %w", err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("pipedrive reported failure: %s", string(respBody))
	}
	return &envelope, nil
}
