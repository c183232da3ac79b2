package mariana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/example/classwatch/internal/auth"
)

var (
	// ErrAuthExpired marks a 401/403 from the API; the cached
	// credential has already been invalidated when it is returned.
	ErrAuthExpired = errors.New("credential rejected by API")

	// ErrCredential marks a failure to obtain a credential at all.
	ErrCredential = errors.New("could not acquire credential")
)

// APIError carries a non-2xx response with the remote payload verbatim
// so booking failures can be surfaced to the operator unedited.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api status=%d", e.Status)
	}
	return fmt.Sprintf("api status=%d: %s", e.Status, e.Body)
}

// CredentialSource supplies a valid credential per request and is told
// when the API rejects one.
type CredentialSource interface {
	Credential(ctx context.Context) (auth.Credential, error)
	Invalidate()
}

// Client is a typed wrapper over the Mariana Tek customer API.
type Client struct {
	hc         *http.Client
	baseURL    string
	regionID   string
	locationID string
	creds      CredentialSource
}

type Config struct {
	BaseURL    string // e.g. https://studio.marianatek.com/api/customer/v1
	RegionID   string
	LocationID string
}

func New(cfg Config, creds CredentialSource) *Client {
	return &Client{
		hc:         &http.Client{Timeout: 10 * time.Second},
		baseURL:    cfg.BaseURL,
		regionID:   cfg.RegionID,
		locationID: cfg.LocationID,
		creds:      creds,
	}
}

// ListClasses returns all class sessions at the configured location on
// date (YYYY-MM-DD).
func (c *Client) ListClasses(ctx context.Context, date string) ([]Class, error) {
	q := map[string]string{
		"min_start_date": date,
		"max_start_date": date,
		"page_size":      "500",
		"location":       c.locationID,
		"region":         c.regionID,
	}
	var res struct {
		Results []Class `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, "/classes", q, nil, &res); err != nil {
		return nil, err
	}
	return res.Results, nil
}

// GetClass fetches one class session including its seat layout.
func (c *Client) GetClass(ctx context.Context, classID string) (Class, error) {
	var cls Class
	if err := c.do(ctx, http.MethodGet, "/classes/"+classID, nil, nil, &cls); err != nil {
		return Class{}, err
	}
	return cls, nil
}

// PaymentOptions lists the caller's payment options for a class.
func (c *Client) PaymentOptions(ctx context.Context, classID string) ([]PaymentOption, error) {
	var res struct {
		UserPaymentOptions []PaymentOption `json:"user_payment_options"`
	}
	if err := c.do(ctx, http.MethodGet, "/classes/"+classID+"/payment_options", nil, nil, &res); err != nil {
		return nil, err
	}
	return res.UserPaymentOptions, nil
}

// CreateReservation submits exactly one reservation.
func (c *Client) CreateReservation(ctx context.Context, req ReservationRequest) (Reservation, error) {
	type ref struct {
		ID string `json:"id"`
	}
	payload := struct {
		ClassSession    ref    `json:"class_session"`
		IsBookedForMe   bool   `json:"is_booked_for_me"`
		ReservationType string `json:"reservation_type"`
		PaymentOption   ref    `json:"payment_option"`
		Spot            *ref   `json:"spot,omitempty"`
	}{
		ClassSession:    ref{ID: req.ClassID},
		IsBookedForMe:   true,
		ReservationType: "standard",
		PaymentOption:   ref{ID: req.PaymentOptionID},
	}
	if req.SpotID != "" {
		payload.Spot = &ref{ID: req.SpotID}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Reservation{}, err
	}
	var r Reservation
	if err := c.do(ctx, http.MethodPost, "/me/reservations", nil, body, &r); err != nil {
		return Reservation{}, err
	}
	return r, nil
}

func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body []byte, out any) error {
	cred, err := c.creds.Credential(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCredential, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if cred.Kind == auth.KindBearer {
		req.Header.Set("Authorization", "Bearer "+cred.Value)
	} else {
		req.Header.Set("Cookie", cred.Value)
	}

	if query != nil {
		q := req.URL.Query()
		for k, v := range query {
			q.Add(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		c.creds.Invalidate()
		return fmt.Errorf("%w (status=%d)", ErrAuthExpired, res.StatusCode)
	case res.StatusCode >= 400:
		return &APIError{Status: res.StatusCode, Body: string(bytes.TrimSpace(b))}
	}

	if out != nil {
		if err := json.Unmarshal(b, out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return nil
}
