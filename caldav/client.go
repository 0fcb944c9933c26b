// Package caldav reads VTODO collections from a CalDAV server and caches
// them per calendar, keyed by the collection's ctag.
package caldav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/emersion/go-webdav"
)

// HTTPClient is anything that can send a request, *http.Client included.
type HTTPClient = webdav.HTTPClient

// Client talks to one CalDAV account.
type Client struct {
	http   HTTPClient
	base   string
	logger *slog.Logger

	mu        sync.RWMutex
	principal string
	home      string
	calendars []*Calendar
}

// New connects to baseURL and discovers the principal, the calendar home
// and every calendar collection that can hold todos.
//
// opts may contain a *http.Client or any HTTPClient used for transport, and
// a *slog.Logger. Credentials are added to every request with basic auth.
func New(ctx context.Context, baseURL, username, password string, opts ...any) (*Client, error) {
	c, err := newClient(baseURL, username, password, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.discover(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func newClient(baseURL, username, password string, opts ...any) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	var hc HTTPClient = http.DefaultClient
	logger := slog.Default()
	for _, opt := range opts {
		switch opt := opt.(type) {
		case HTTPClient: // *http.Client included
			hc = opt
		case *slog.Logger:
			logger = opt
		default:
			return nil, fmt.Errorf("unknown option type %T", opt)
		}
	}
	return &Client{
		http:   webdav.HTTPClientWithBasicAuth(hc, username, password),
		base:   u.String(),
		logger: logger,
	}, nil
}

func (c *Client) discover(ctx context.Context) error {
	principal, err := c.DiscoverPrincipal(ctx, c.base)
	if err != nil {
		return err
	}
	home, err := c.DiscoverHomeSet(ctx, principal)
	if err != nil {
		return err
	}
	cals, err := c.DiscoverCalendars(ctx, home)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.principal, c.home, c.calendars = principal, home, cals
	c.mu.Unlock()
	c.logger.Info("discovered calendars", "home", home, "count", len(cals))
	return nil
}

// Principal is the current user principal URL found at discovery.
func (c *Client) Principal() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.principal
}

// Home is the calendar home set URL found at discovery.
func (c *Client) Home() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.home
}

// Calendars returns the discovered todo calendars in server order.
func (c *Client) Calendars() []*Calendar {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Calendar(nil), c.calendars...)
}

// Calendar finds a calendar by display name, preferring an exact match over
// a case-insensitive one. It returns nil when nothing matches.
func (c *Client) Calendar(name string) *Calendar {
	cals := c.Calendars()
	for _, cal := range cals {
		if cal.Name() == name {
			return cal
		}
	}
	for _, cal := range cals {
		if strings.EqualFold(cal.Name(), name) {
			return cal
		}
	}
	return nil
}

// RefreshCalendars re-lists the calendar home. Calendars whose URL is
// unchanged keep their handle and cached todos with updated metadata.
func (c *Client) RefreshCalendars(ctx context.Context) error {
	fresh, err := c.DiscoverCalendars(ctx, c.Home())
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	known := make(map[string]*Calendar, len(c.calendars))
	for _, cal := range c.calendars {
		known[cal.url] = cal
	}
	for i, cal := range fresh {
		if old, ok := known[cal.url]; ok {
			old.setMetadata(cal.Metadata())
			fresh[i] = old
		}
	}
	c.calendars = fresh
	return nil
}

// DiscoverPrincipal asks base for the current-user-principal and returns it
// as an absolute URL.
func (c *Client) DiscoverPrincipal(ctx context.Context, base string) (string, error) {
	href, err := c.singleHref(ctx, OpPrincipal, base, principalProps, "current-user-principal", nsDAV)
	if err != nil {
		return "", err
	}
	c.logger.Debug("found principal", "url", href)
	return href, nil
}

// DiscoverHomeSet asks the principal for its calendar-home-set.
func (c *Client) DiscoverHomeSet(ctx context.Context, principal string) (string, error) {
	href, err := c.singleHref(ctx, OpHomeSet, principal, homeSetProps, "calendar-home-set", nsCalDAV)
	if err != nil {
		return "", err
	}
	c.logger.Debug("found calendar home", "url", href)
	return href, nil
}

func (c *Client) singleHref(ctx context.Context, op, target, props, local, ns string) (string, error) {
	root, err := c.request(ctx, op, "PROPFIND", target, "0", propfindBody(props))
	if err != nil {
		return "", err
	}
	fail := func(err error) (string, error) {
		return "", &ProtocolError{Op: op, URL: target, Err: err}
	}
	resps, err := responses(root)
	if err != nil {
		return fail(err)
	}
	for _, resp := range resps {
		prop := findProp(resp, local, ns)
		if prop == nil {
			continue
		}
		href, err := followTree(prop, "href", nsDAV)
		if err != nil {
			return fail(err)
		}
		abs, err := resolve(target, href.trimmed())
		if err != nil {
			return fail(err)
		}
		return abs, nil
	}
	return fail(fmt.Errorf("%w: {%s}%s", ErrMissingNode, ns, local))
}

// DiscoverCalendars lists the collections under home and keeps those that
// are calendars supporting VTODO.
func (c *Client) DiscoverCalendars(ctx context.Context, home string) ([]*Calendar, error) {
	root, err := c.request(ctx, OpCalendarList, "PROPFIND", home, "1", propfindBody(calendarProps))
	if err != nil {
		return nil, err
	}
	resps, err := responses(root)
	if err != nil {
		return nil, &ProtocolError{Op: OpCalendarList, URL: home, Err: err}
	}
	var cals []*Calendar
	for _, resp := range resps {
		href, err := followTree(resp, "href", nsDAV)
		if err != nil {
			return nil, &ProtocolError{Op: OpCalendarList, URL: home, Err: err}
		}
		abs, err := resolve(home, href.trimmed())
		if err != nil {
			return nil, &ProtocolError{Op: OpCalendarList, URL: home, Err: err}
		}
		md, ok := parseMetadata(resp, abs)
		if !ok {
			continue
		}
		cals = append(cals, newCalendar(abs, md))
	}
	return cals, nil
}

// parseMetadata reads a calendar collection's properties. ok is false for
// anything that is not a calendar or cannot hold VTODO.
func parseMetadata(resp *element, href string) (md Metadata, ok bool) {
	rt := findProp(resp, "resourcetype", nsDAV)
	if rt == nil || rt.child("calendar", nsCalDAV) == nil {
		return md, false
	}
	set := findProp(resp, "supported-calendar-component-set", nsCalDAV)
	if set == nil {
		return md, false
	}
	for _, comp := range set.all("comp", nsCalDAV) {
		if strings.EqualFold(comp.attr("name"), "VTODO") {
			md.SupportsTodo = true
		}
	}
	if !md.SupportsTodo {
		return md, false
	}
	if p := findProp(resp, "displayname", nsDAV); p != nil {
		md.Name = p.trimmed()
	}
	if md.Name == "" {
		md.Name = collectionName(href)
	}
	if p := findProp(resp, "getctag", nsCalServer); p != nil {
		md.CTag = p.trimmed()
	}
	if p := findProp(resp, "calendar-description", nsCalDAV); p != nil {
		md.Description = p.trimmed()
	}
	if p := findProp(resp, "calendar-color", nsApple); p != nil {
		md.Color = p.trimmed()
	}
	return md, true
}

func collectionName(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	return path.Base(strings.TrimSuffix(u.Path, "/"))
}

func (c *Client) request(ctx context.Context, op, method, target, depth, body string) (*element, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, strings.NewReader(body))
	if err != nil {
		return nil, &ProtocolError{Op: op, URL: target, Err: err}
	}
	req.Header.Set("Depth", depth)
	req.Header.Set("Content-Type", "application/xml")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ProtocolError{Op: op, URL: target, Err: err}
	}
	defer resp.Body.Close()
	c.logger.Debug("caldav request", "op", op, "method", method, "url", target, "depth", depth, "status", resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &ProtocolError{Op: op, URL: target, Status: resp.StatusCode, Err: ErrUnexpectedStatus}
	}
	root, err := parseTree(resp.Body)
	if err != nil {
		return nil, &ProtocolError{Op: op, URL: target, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return root, nil
}

func resolve(base, href string) (string, error) {
	if href == "" {
		return "", errors.New("empty href")
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", base, err)
	}
	h, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}
	return b.ResolveReference(h).String(), nil
}
