package device

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Controller endpoints. Every request is a GET, writes carry the value in the
// data query parameter.
const (
	pathStatus       = "/getmachinestate"
	pathGetBagLength = "/getbaglength"
	pathGetSpeed     = "/getbpm"
	pathSetBagLength = "/baglength"
	pathSetSpeed     = "/bpm"
	pathStart        = "/machinestart"
	pathStop         = "/machinestop"
)

// Operation names used in errors, logs and metric labels.
const (
	OpStatus       = "status"
	OpBagLength    = "get_bag_length"
	OpSpeed        = "get_speed"
	OpSetBagLength = "set_bag_length"
	OpSetSpeed     = "set_speed"
	OpStart        = "start"
	OpStop         = "stop"
)

const (
	// DefaultSpeedFallback is reported when the controller answers the speed
	// query with something that is not a positive number.
	DefaultSpeedFallback = 30

	maxBodyBytes = 4 << 10
)

// Device is the set of commands the bagging-machine controller understands.
type Device interface {
	Status(ctx context.Context) (string, error)
	BagLength(ctx context.Context) (int, error)
	Speed(ctx context.Context) (int, error)
	SetBagLength(ctx context.Context, value int) error
	SetSpeed(ctx context.Context, value int) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Client talks to the controller's plain-text HTTP interface.
type Client struct {
	base          string
	http          *http.Client
	speedFallback int
	log           *logrus.Entry
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default bounded HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithSpeedFallback sets the speed reported for unusable speed answers.
func WithSpeedFallback(v int) Option {
	return func(c *Client) {
		if v > 0 {
			c.speedFallback = v
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(log *logrus.Entry) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// New creates a client for the controller at baseURL. Requests are abandoned
// after timeout.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		base:          strings.TrimRight(baseURL, "/"),
		http:          NewHTTPClient(timeout),
		speedFallback: DefaultSpeedFallback,
		log:           logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the controller address the client was built with.
func (c *Client) BaseURL() string {
	return c.base
}

// Status returns the raw machine state token. Callers compare it after
// trimming whitespace.
func (c *Client) Status(ctx context.Context) (string, error) {
	return c.read(ctx, OpStatus, pathStatus, nil)
}

// BagLength returns the bag length currently configured on the device.
func (c *Client) BagLength(ctx context.Context) (int, error) {
	var v int
	_, err := c.read(ctx, OpBagLength, pathGetBagLength, func(body string) error {
		n, ok := parseLeadingInt(body)
		if !ok {
			return &Error{Sentinel: ErrBadResponse, Op: OpBagLength, Body: body}
		}
		v = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return v, nil
}

// Speed returns the configured bags per minute. Empty, non-numeric or zero
// answers yield the fallback speed instead of an error.
func (c *Client) Speed(ctx context.Context) (int, error) {
	body, err := c.read(ctx, OpSpeed, pathGetSpeed, nil)
	if err != nil {
		return 0, err
	}
	v, ok := parseLeadingInt(body)
	if !ok || v == 0 {
		c.log.WithField("body", body).Debugf("unusable speed answer, using %d", c.speedFallback)
		return c.speedFallback, nil
	}
	return v, nil
}

func (c *Client) SetBagLength(ctx context.Context, value int) error {
	return c.write(ctx, OpSetBagLength, pathSetBagLength, dataQuery(value))
}

func (c *Client) SetSpeed(ctx context.Context, value int) error {
	return c.write(ctx, OpSetSpeed, pathSetSpeed, dataQuery(value))
}

func (c *Client) Start(ctx context.Context) error {
	return c.write(ctx, OpStart, pathStart, nil)
}

func (c *Client) Stop(ctx context.Context) error {
	return c.write(ctx, OpStop, pathStop, nil)
}

func dataQuery(v int) url.Values {
	return url.Values{"data": []string{strconv.Itoa(v)}}
}

// read fetches a plain-text answer. A non-nil check validates the body before
// the request is counted, so unusable answers show up as bad responses.
func (c *Client) read(ctx context.Context, op, path string, check func(string) error) (string, error) {
	return c.call(ctx, op, path, nil, false, check)
}

func (c *Client) write(ctx context.Context, op, path string, query url.Values) error {
	_, err := c.call(ctx, op, path, query, true, nil)
	return err
}

func (c *Client) call(ctx context.Context, op, path string, query url.Values, write bool,
	check func(string) error) (string, error) {
	start := time.Now()
	body, err := c.do(ctx, op, path, query, write)
	if err == nil && check != nil {
		err = check(body)
	}
	elapsed := time.Since(start)
	observeRequest(op, err, elapsed)

	log := c.log.WithFields(logrus.Fields{
		"op":       op,
		"duration": elapsed.Round(time.Millisecond),
	})
	if err != nil {
		log.WithError(err).Debug("device request failed")
	} else {
		log.Debug("device request ok")
	}
	return body, err
}

func (c *Client) do(ctx context.Context, op, path string, query url.Values, write bool) (string, error) {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", &Error{Sentinel: ErrUnreachable, Op: op, Err: err}
	}

	res, err := c.http.Do(req)
	if err != nil {
		return "", &Error{Sentinel: ErrUnreachable, Op: op, Err: err}
	}
	defer res.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		sentinel := ErrUnreachable
		if write {
			sentinel = ErrRejected
		}
		return "", &Error{Sentinel: sentinel, Op: op, Status: res.StatusCode}
	}
	if readErr != nil {
		return "", &Error{Sentinel: ErrUnreachable, Op: op, Err: readErr}
	}
	return string(raw), nil
}
