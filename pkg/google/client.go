// Package google is a thin client for the Google Places API (New): nearby
// search and place details. Responses are decoded into wire structs and
// validated before being converted to the exported types.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://places.googleapis.com/v1"

const (
	searchFieldMask  = "places.id,places.displayName,places.formattedAddress,places.location,places.rating,places.userRatingCount,places.priceLevel,places.photos"
	detailsFieldMask = "id,displayName,formattedAddress,location,rating,userRatingCount,priceLevel,websiteUri,nationalPhoneNumber,servesVegetarianFood,editorialSummary,photos"
	photoMaxWidthPx  = 800
	maxResultCount   = 20
)

// Client performs Google Places API operations.
type Client interface {
	SearchNearby(ctx context.Context, req NearbyRequest) ([]Place, error)
	GetPlaceDetails(ctx context.Context, placeID string) (*PlaceDetails, error)
}

// NearbyRequest is a circular restaurant search.
type NearbyRequest struct {
	Lat     float64
	Lng     float64
	RadiusM float64
}

// Place is a validated nearby-search result.
type Place struct {
	ID          string
	Name        string
	Address     string
	Lat         float64
	Lng         float64
	Rating      *float64
	ReviewCount *int
	PriceLevel  *int
	PhotoURL    *string
}

// PlaceDetails is a validated place-details result.
type PlaceDetails struct {
	Place
	Website              *string
	Phone                *string
	ServesVegetarianFood *bool
	Summary              *string
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Google Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Wire types. Every field is optional on the wire.

type wireText struct {
	Text string `json:"text"`
}

type wireLatLng struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type wirePhoto struct {
	Name string `json:"name"`
}

type wirePlace struct {
	ID                   string      `json:"id"`
	DisplayName          *wireText   `json:"displayName"`
	FormattedAddress     string      `json:"formattedAddress"`
	Location             *wireLatLng `json:"location"`
	Rating               *float64    `json:"rating"`
	UserRatingCount      *int        `json:"userRatingCount"`
	PriceLevel           string      `json:"priceLevel"`
	Photos               []wirePhoto `json:"photos"`
	WebsiteURI           string      `json:"websiteUri"`
	NationalPhoneNumber  string      `json:"nationalPhoneNumber"`
	ServesVegetarianFood *bool       `json:"servesVegetarianFood"`
	EditorialSummary     *wireText   `json:"editorialSummary"`
}

type searchNearbyRequest struct {
	IncludedTypes       []string            `json:"includedTypes"`
	MaxResultCount      int                 `json:"maxResultCount"`
	LocationRestriction locationRestriction `json:"locationRestriction"`
}

type locationRestriction struct {
	Circle circle `json:"circle"`
}

type circle struct {
	Center latLng  `json:"center"`
	Radius float64 `json:"radius"`
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type searchNearbyResponse struct {
	Places []wirePlace `json:"places"`
}

var priceLevels = map[string]int{
	"PRICE_LEVEL_FREE":           0,
	"PRICE_LEVEL_INEXPENSIVE":    1,
	"PRICE_LEVEL_MODERATE":       2,
	"PRICE_LEVEL_EXPENSIVE":      3,
	"PRICE_LEVEL_VERY_EXPENSIVE": 4,
}

// ParsePriceLevel maps a PRICE_LEVEL_* enum to 0..4. Unknown values yield nil.
func ParsePriceLevel(s string) *int {
	v, ok := priceLevels[s]
	if !ok {
		return nil
	}
	return &v
}

func (c *httpClient) SearchNearby(ctx context.Context, req NearbyRequest) ([]Place, error) {
	body, err := json.Marshal(searchNearbyRequest{
		IncludedTypes:  []string{"restaurant"},
		MaxResultCount: maxResultCount,
		LocationRestriction: locationRestriction{Circle: circle{
			Center: latLng{Latitude: req.Lat, Longitude: req.Lng},
			Radius: req.RadiusM,
		}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "google: marshal request")
	}

	var resp searchNearbyResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/places:searchNearby", searchFieldMask, body, &resp); err != nil {
		return nil, err
	}

	places := make([]Place, 0, len(resp.Places))
	for _, wp := range resp.Places {
		p, ok := c.toPlace(wp)
		if !ok {
			continue
		}
		places = append(places, p)
	}
	return places, nil
}

func (c *httpClient) GetPlaceDetails(ctx context.Context, placeID string) (*PlaceDetails, error) {
	if placeID == "" {
		return nil, eris.New("google: empty place id")
	}

	var wp wirePlace
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/places/"+url.PathEscape(placeID), detailsFieldMask, nil, &wp); err != nil {
		return nil, err
	}

	p, ok := c.toPlace(wp)
	if !ok {
		return nil, eris.Errorf("google: place %s missing id or name", placeID)
	}

	d := &PlaceDetails{
		Place:                p,
		Website:              nonEmpty(wp.WebsiteURI),
		Phone:                nonEmpty(wp.NationalPhoneNumber),
		ServesVegetarianFood: wp.ServesVegetarianFood,
	}
	if wp.EditorialSummary != nil {
		d.Summary = nonEmpty(wp.EditorialSummary.Text)
	}
	return d, nil
}

// toPlace validates a wire place. Places without an id or display name are dropped.
func (c *httpClient) toPlace(wp wirePlace) (Place, bool) {
	if wp.ID == "" || wp.DisplayName == nil || strings.TrimSpace(wp.DisplayName.Text) == "" {
		return Place{}, false
	}
	p := Place{
		ID:          wp.ID,
		Name:        strings.TrimSpace(wp.DisplayName.Text),
		Address:     wp.FormattedAddress,
		Rating:      wp.Rating,
		ReviewCount: wp.UserRatingCount,
		PriceLevel:  ParsePriceLevel(wp.PriceLevel),
	}
	if wp.Location != nil && wp.Location.Latitude != nil && wp.Location.Longitude != nil {
		p.Lat = *wp.Location.Latitude
		p.Lng = *wp.Location.Longitude
	}
	if len(wp.Photos) > 0 && wp.Photos[0].Name != "" {
		u := c.photoURL(wp.Photos[0].Name)
		p.PhotoURL = &u
	}
	return p, true
}

// photoURL builds the media URL for a photo resource name.
func (c *httpClient) photoURL(name string) string {
	q := url.Values{}
	q.Set("maxWidthPx", strconv.Itoa(photoMaxWidthPx))
	q.Set("key", c.apiKey)
	return c.baseURL + "/" + name + "/media?" + q.Encode()
}

func (c *httpClient) do(ctx context.Context, method, endpoint, fieldMask string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return eris.Wrap(err, "google: create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "google: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "google: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("google: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "google: unmarshal response")
	}
	return nil
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
