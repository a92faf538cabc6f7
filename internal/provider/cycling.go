package provider

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/bpriyal/s2sGeoAdapter/internal/geo"
	"github.com/bpriyal/s2sGeoAdapter/internal/httputil"
	"github.com/bpriyal/s2sGeoAdapter/internal/monitoring"
	"github.com/bpriyal/s2sGeoAdapter/internal/shm"
)

// CyclingName is the registry name of the cycling provider.
const CyclingName = "cycling"

// metersPerDegreeLat approximates one degree of latitude.
const metersPerDegreeLat = 111000.0

// prefetchPoints is how many points ahead a prefetch samples.
const prefetchPoints = 3

// upstreamTimeout bounds each external fetch so GetContext stays inside the
// daemon tick budget.
const upstreamTimeout = 2 * time.Second

// CyclingProvider enriches positions with road surface, grade and traffic
// context for cyclists. Upstream data comes from an elevation API and an
// OSM Overpass endpoint when configured; without them the provider serves
// calibration defaults so the pipeline keeps flowing.
type CyclingProvider struct {
	apiKey            string
	osmEndpoint       string
	elevationEndpoint string
	client            httputil.HTTPClient

	cache          frameCache
	lastElevationM float64
	haveElevation  bool

	now func() time.Time
}

type cyclingConfig struct {
	GoogleMapsAPIKey  string `json:"google_maps_api_key"`
	OSMAPIEndpoint    string `json:"osm_api_endpoint"`
	ElevationEndpoint string `json:"elevation_api_endpoint"`
}

// NewCyclingProvider returns an unconfigured provider.
func NewCyclingProvider() *CyclingProvider {
	return &CyclingProvider{
		client: httputil.NewStandardClient(&http.Client{Timeout: upstreamTimeout}),
		now:    time.Now,
	}
}

// Initialize reads API credentials and endpoint overrides. Malformed config
// is logged and ignored; the provider proceeds with defaults.
func (c *CyclingProvider) Initialize(config []byte) error {
	if len(config) == 0 {
		return nil
	}
	var cfg cyclingConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		monitoring.Logf("cycling: bad config, using defaults: %v", err)
		return nil
	}
	c.apiKey = cfg.GoogleMapsAPIKey
	c.osmEndpoint = cfg.OSMAPIEndpoint
	c.elevationEndpoint = cfg.ElevationEndpoint
	return nil
}

// Name returns the registry name.
func (c *CyclingProvider) Name() string { return CyclingName }

// GetContext returns the context frame for a position, from the single-slot
// cache when the query is close and fresh enough, otherwise from upstream.
func (c *CyclingProvider) GetContext(lat, lon float64) shm.ContextFrame {
	nowMS := c.now().UnixMilli()
	if frame, ok := c.cache.get(lat, lon, nowMS); ok {
		return frame
	}

	frame := c.fetchFrame(lat, lon, nowMS)
	c.cache.put(frame, lat, lon, nowMS)
	return frame
}

// PrefetchContext fires background fetches for points ahead along the
// heading vector. Results and failures are discarded; the value is warming
// upstream and transport caches before the rider arrives.
func (c *CyclingProvider) PrefetchContext(lat, lon, headingDeg, distanceM float64) {
	go func() {
		headingRad := headingDeg * math.Pi / 180
		latRad := lat * math.Pi / 180
		stepDeg := distanceM / metersPerDegreeLat
		for i := 1; i <= prefetchPoints; i++ {
			dLat := stepDeg * math.Cos(headingRad) * float64(i)
			// Longitude degrees shrink with latitude.
			dLon := stepDeg * math.Sin(headingRad) / math.Cos(latRad) * float64(i)
			c.fetchSurface(lat+dLat, lon+dLon)
			c.fetchElevation(lat+dLat, lon+dLon)
		}
	}()
}

// fetchFrame assembles a frame from upstream data, falling back to defaults
// per field on failure.
func (c *CyclingProvider) fetchFrame(lat, lon float64, nowMS int64) shm.ContextFrame {
	var frame shm.ContextFrame
	shm.PutFixedString(frame.RoadName[:], "Main Street")
	shm.PutFixedString(frame.Surface[:], "asphalt")
	shm.PutFixedString(frame.Traffic[:], "moderate")
	shm.PutFixedString(frame.Hazards[:], `[{"type":"congestion","severity":"low"}]`)
	frame.CurrentSpeed = 0
	frame.SpeedLimit = 50
	frame.ElevationGainM = 0
	frame.GradientPercent = 0
	frame.TimestampMS = nowMS

	if surface, err := c.fetchSurface(lat, lon); err == nil && surface != "" {
		shm.PutFixedString(frame.Surface[:], surface)
	} else if err != nil {
		monitoring.Logf("cycling: surface fetch: %v", err)
	}

	if c.elevationEndpoint == "" {
		return frame
	}
	if elevation, err := c.fetchElevation(lat, lon); err == nil {
		if c.haveElevation {
			gain := elevation - c.lastElevationM
			if gain > 0 {
				frame.ElevationGainM = gain
			}
			if run := geo.DistanceM(c.cache.lat, c.cache.lon, lat, lon); run > 1 {
				frame.GradientPercent = (elevation - c.lastElevationM) / run * 100
			}
		}
		c.lastElevationM = elevation
		c.haveElevation = true
	} else {
		monitoring.Logf("cycling: elevation fetch: %v", err)
	}

	return frame
}

// overpassResponse is the subset of an Overpass API reply the provider
// reads.
type overpassResponse struct {
	Elements []struct {
		Tags map[string]string `json:"tags"`
	} `json:"elements"`
}

// fetchSurface queries the OSM endpoint for the surface tag of the nearest
// way.
func (c *CyclingProvider) fetchSurface(lat, lon float64) (string, error) {
	if c.osmEndpoint == "" {
		return "", nil
	}
	query := fmt.Sprintf("%s?data=%s", c.osmEndpoint,
		url.QueryEscape(fmt.Sprintf(`[out:json];way(around:50,%.6f,%.6f)[highway];out tags 1;`, lat, lon)))
	body, err := c.getJSON(query)
	if err != nil {
		return "", err
	}
	var resp overpassResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parse overpass response: %w", err)
	}
	for _, elem := range resp.Elements {
		if surface, ok := elem.Tags["surface"]; ok {
			return surface, nil
		}
	}
	return "", nil
}

// elevationResponse is the subset of an elevation API reply the provider
// reads.
type elevationResponse struct {
	Results []struct {
		Elevation float64 `json:"elevation"`
	} `json:"results"`
}

// fetchElevation queries the elevation endpoint for the point.
func (c *CyclingProvider) fetchElevation(lat, lon float64) (float64, error) {
	if c.elevationEndpoint == "" {
		return 0, fmt.Errorf("no elevation endpoint configured")
	}
	query := fmt.Sprintf("%s?locations=%.6f,%.6f", c.elevationEndpoint, lat, lon)
	if c.apiKey != "" {
		query += "&key=" + url.QueryEscape(c.apiKey)
	}
	body, err := c.getJSON(query)
	if err != nil {
		return 0, err
	}
	var resp elevationResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("parse elevation response: %w", err)
	}
	if len(resp.Results) == 0 {
		return 0, fmt.Errorf("elevation response empty")
	}
	return resp.Results[0].Elevation, nil
}

func (c *CyclingProvider) getJSON(url string) ([]byte, error) {
	resp, err := c.client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}
