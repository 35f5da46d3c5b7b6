package whatsapp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"leadintake-service/pkg/config"

	"go.uber.org/zap"
)

// Client sends templated confirmation messages through the WhatsApp Graph
// API. This path is non-critical: the orchestrator swallows every error it
// returns.
type Client struct {
	cfg        *config.WhatsAppConfig
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient creates a WhatsApp client from configuration.
func NewClient(cfg *config.WhatsAppConfig, log *zap.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

// SendDealConfirmation sends one templated message confirming the booked
// categories to the client's phone.
func (c *Client) SendDealConfirmation(contactNumber, name string, categories []string, eventDate *time.Time, venue string) error {
	to, err := c.formatPhoneNumber(contactNumber)
	if err != nil {
		return err
	}

	c.log.Info("Sending WhatsApp confirmation",
		zap.String("to", to),
		zap.String("name", name),
		zap.Strings("categories", categories))

	body := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template": map[string]interface{}{
			"name": c.cfg.TemplateName,
			"language": map[string]string{
				"code": "en_US",
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := c.cfg.BaseURL + "/" + c.cfg.PhoneNumberID + "/messages"
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("whatsapp returned %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// formatPhoneNumber strips the number down to digits only; the Graph API
// expects country code + number with no plus sign or separators.
func (c *Client) formatPhoneNumber(contactNumber string) (string, error) {
	if contactNumber == "" {
		return "", errors.New("phone number cannot be empty")
	}

	var b strings.Builder
	for _, r := range contactNumber {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return "", fmt.Errorf("phone number %q contains no digits", contactNumber)
	}

	if c.cfg.CountryCode != "" && !strings.HasPrefix(cleaned, c.cfg.CountryCode) {
		c.log.Warn("Phone number does not start with the expected country code",
			zap.String("contact_number", contactNumber),
			zap.String("country_code", c.cfg.CountryCode))
	}

	return cleaned, nil
}
