package distance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/ratecon-intake/constants"
)

type Config struct {
	GeocoderURL string        // Nominatim base, default https://nominatim.openstreetmap.org
	RouterURL   string        // OSRM base, default http://router.project-osrm.org
	UserAgent   string        // both services require an identifying client string
	Timeout     time.Duration // per request
}

// Client resolves driving miles between two free-text addresses.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

type point struct {
	Lat string
	Lon string
}

var errNoMatch = errors.New("no geocode match")

func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if cfg.GeocoderURL == "" {
		cfg.GeocoderURL = constants.DefaultGeocoderURL
	}
	if cfg.RouterURL == "" {
		cfg.RouterURL = constants.DefaultRouterURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = constants.DefaultGeoUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.DefaultGeoTimeout
	}
	cfg.GeocoderURL = strings.TrimRight(cfg.GeocoderURL, "/")
	cfg.RouterURL = strings.TrimRight(cfg.RouterURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

// Miles returns the route length rounded to one decimal ("742", "12.3"), or "" when
// either address cannot be resolved. It never fails.
func (c *Client) Miles(ctx context.Context, origin, destination string) string {
	origin, destination = strings.TrimSpace(origin), strings.TrimSpace(destination)
	if origin == "" || destination == "" {
		return ""
	}
	start := time.Now()

	from, err := c.geocode(ctx, origin)
	if err != nil {
		c.logger.Warn("distance.geocode.failed", "address", origin, "error", err)
		return ""
	}
	to, err := c.geocode(ctx, destination)
	if err != nil {
		c.logger.Warn("distance.geocode.failed", "address", destination, "error", err)
		return ""
	}
	meters, err := c.route(ctx, from, to)
	if err != nil {
		c.logger.Warn("distance.route.failed", "error", err)
		return ""
	}

	miles := math.Round(meters*constants.MetersToMiles*10) / 10
	out := strconv.FormatFloat(miles, 'f', -1, 64)
	c.logger.Info("distance.ok", "miles", out, "elapsed_ms", time.Since(start).Milliseconds())
	return out
}

func (c *Client) geocode(ctx context.Context, address string) (point, error) {
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")

	var hits []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := c.getJSON(ctx, c.cfg.GeocoderURL+"/search?"+q.Encode(), &hits); err != nil {
		return point{}, err
	}
	if len(hits) == 0 || hits[0].Lat == "" || hits[0].Lon == "" {
		return point{}, errNoMatch
	}
	return point{Lat: hits[0].Lat, Lon: hits[0].Lon}, nil
}

func (c *Client) route(ctx context.Context, from, to point) (float64, error) {
	u := fmt.Sprintf("%s/route/v1/driving/%s,%s;%s,%s?overview=false",
		c.cfg.RouterURL, from.Lon, from.Lat, to.Lon, to.Lat)

	var body struct {
		Code   string `json:"code"`
		Routes []struct {
			Distance float64 `json:"distance"`
		} `json:"routes"`
	}
	if err := c.getJSON(ctx, u, &body); err != nil {
		return 0, err
	}
	if len(body.Routes) == 0 {
		return 0, fmt.Errorf("no route (code=%q)", body.Code)
	}
	return body.Routes[0].Distance, nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
