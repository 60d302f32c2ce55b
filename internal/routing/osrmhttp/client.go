// Package osrmhttp talks to an OSRM-compatible routing server. Retry and
// timeout policy lives here, at the adapter boundary, so the optimizer
// stays a pure function of an already-resolved matrix.
package osrmhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/RouteBox/internal/faults"
	"github.com/BearBump/RouteBox/internal/geo"
	"github.com/BearBump/RouteBox/internal/routing"
	"github.com/pkg/errors"
)

type Client struct {
	baseURL string
	profile string
	httpc   *http.Client

	retryMax     int
	retryBackoff time.Duration
}

func New(baseURL string, timeout time.Duration, retryMax int) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:5000"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 3
	}
	return &Client{
		baseURL: baseURL,
		profile: "driving",
		httpc: &http.Client{
			Timeout: timeout,
		},
		retryMax:     retryMax,
		retryBackoff: 200 * time.Millisecond,
	}
}

type tableResp struct {
	Code      string       `json:"code"`
	Message   string       `json:"message"`
	Durations [][]*float64 `json:"durations"`
	Distances [][]*float64 `json:"distances"`
}

type routeResp struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Geometry string `json:"geometry"`
	} `json:"routes"`
}

func (c *Client) GetMatrix(ctx context.Context, points []geo.Point, opts routing.Options) (*routing.Matrix, error) {
	if len(points) < 2 {
		return nil, faults.New(faults.InfeasibleInput, "matrix needs at least 2 points, got %d", len(points))
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	u.Path = fmt.Sprintf("/table/v1/%s/%s", c.profile, coordPath(points))

	q := u.Query()
	q.Set("annotations", "duration,distance")
	if opts.AvoidTolls {
		q.Set("exclude", "toll")
	}
	u.RawQuery = q.Encode()

	var r tableResp
	if err := c.getJSON(ctx, u.String(), &r); err != nil {
		return nil, err
	}
	if r.Code != "Ok" {
		return nil, faults.New(faults.DependencyUnavailable, "osrm table code=%s message=%s", r.Code, r.Message)
	}
	if len(r.Durations) != len(points) || len(r.Distances) != len(points) {
		return nil, faults.New(faults.DependencyUnavailable, "osrm table returned %dx%d for %d points",
			len(r.Durations), len(r.Distances), len(points))
	}

	m := &routing.Matrix{
		Distances: make([][]float64, len(points)),
		Durations: make([][]float64, len(points)),
	}
	for i := range points {
		if len(r.Durations[i]) != len(points) || len(r.Distances[i]) != len(points) {
			return nil, faults.New(faults.DependencyUnavailable, "osrm table row %d is ragged", i)
		}
		m.Distances[i] = make([]float64, len(points))
		m.Durations[i] = make([]float64, len(points))
		for j := range points {
			// null cell = no road between the pair, not a provider failure.
			m.Durations[i][j] = deref(r.Durations[i][j])
			m.Distances[i][j] = deref(r.Distances[i][j])
		}
	}
	return m, nil
}

func (c *Client) GetPath(ctx context.Context, points []geo.Point, opts routing.Options) (string, error) {
	if len(points) < 2 {
		return "", nil
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", errors.Wrap(err, "parse base url")
	}
	u.Path = fmt.Sprintf("/route/v1/%s/%s", c.profile, coordPath(points))

	q := u.Query()
	q.Set("overview", "full")
	q.Set("geometries", "polyline")
	if opts.AvoidTolls {
		q.Set("exclude", "toll")
	}
	u.RawQuery = q.Encode()

	var r routeResp
	if err := c.getJSON(ctx, u.String(), &r); err != nil {
		return "", err
	}
	if r.Code != "Ok" || len(r.Routes) == 0 {
		return "", faults.New(faults.DependencyUnavailable, "osrm route code=%s message=%s", r.Code, r.Message)
	}
	return r.Routes[0].Geometry, nil
}

// getJSON performs the request with bounded retry on transport errors and
// 5xx responses. 4xx responses are not retried.
func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	var lastErr error
	for attempt := 0; attempt < c.retryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return faults.Wrap(faults.DependencyUnavailable, ctx.Err(), "osrm request cancelled")
			case <-time.After(c.retryBackoff * time.Duration(1<<(attempt-1))):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return errors.Wrap(err, "new request")
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode/100 == 5 {
			resp.Body.Close()
			lastErr = fmt.Errorf("osrm http %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode/100 != 2 {
			resp.Body.Close()
			return faults.New(faults.DependencyUnavailable, "osrm http %d", resp.StatusCode)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return faults.Wrap(faults.DependencyUnavailable, err, "decode osrm response")
		}
		return nil
	}
	return faults.Wrap(faults.DependencyUnavailable, lastErr, "osrm unreachable after %d attempts", c.retryMax)
}

// OSRM wants lng,lat pairs joined with semicolons.
func coordPath(points []geo.Point) string {
	var b strings.Builder
	for i, p := range points {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(strconv.FormatFloat(p.Lng, 'f', 6, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(p.Lat, 'f', 6, 64))
	}
	return b.String()
}

func deref(v *float64) float64 {
	if v == nil {
		return math.Inf(1)
	}
	return *v
}
