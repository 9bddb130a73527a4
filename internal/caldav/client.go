// Package caldav implements the subset of CalDAV (RFC 4791) needed to
// discover calendar collections and pull VEVENTs from servers like iCloud.
package caldav

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the iCloud CalDAV endpoint used when a connection does
// not specify its own server.
const DefaultBaseURL = "https://caldav.icloud.com"

// Calendar is one discovered calendar collection.
type Calendar struct {
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
	CTag        string `json:"ctag,omitempty"`
}

// StatusError is returned for any non-success HTTP response from the server.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("caldav: server returned %s", e.Status)
}

// Client issues PROPFIND and REPORT requests against a CalDAV server using
// HTTP Basic auth on every request. Calls are single attempts; retry policy
// belongs to the caller.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
}

// NewClient creates a CalDAV client. An empty baseURL falls back to iCloud.
func NewClient(baseURL, username, password string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		username:   username,
		password:   password,
	}
}

const discoverBody = `<?xml version="1.0" encoding="utf-8" ?>
<d:propfind xmlns:d="DAV:" xmlns:cs="http://calendarserver.org/ns/">
  <d:prop>
    <d:displayname/>
    <d:resourcetype/>
    <cs:getctag/>
  </d:prop>
</d:propfind>`

// DiscoverCalendars enumerates the account's calendar collections with a
// Depth:1 PROPFIND against the calendar home. Entries whose resourcetype is
// not a calendar collection (the home itself, inbox/outbox) are skipped.
func (c *Client) DiscoverCalendars(ctx context.Context) ([]Calendar, error) {
	path := fmt.Sprintf("/%s/calendars/", c.username)
	body, err := c.do(ctx, "PROPFIND", path, discoverBody)
	if err != nil {
		return nil, err
	}

	ms, err := parseMultistatus(body)
	if err != nil {
		return nil, fmt.Errorf("parsing calendar list: %w", err)
	}

	var calendars []Calendar
	for _, resp := range ms.Responses {
		for _, ps := range resp.Propstat {
			if !ps.ok() || ps.Prop.ResourceType == nil || ps.Prop.ResourceType.Calendar == nil {
				continue
			}
			cal := Calendar{URL: resp.Href}
			if ps.Prop.DisplayName != nil {
				cal.DisplayName = *ps.Prop.DisplayName
			}
			if ps.Prop.CTag != nil {
				cal.CTag = *ps.Prop.CTag
			}
			calendars = append(calendars, cal)
		}
	}
	return calendars, nil
}

const queryBodyTemplate = `<?xml version="1.0" encoding="utf-8" ?>
<c:calendar-query xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:prop>
    <d:getetag/>
    <c:calendar-data/>
  </d:prop>
  <c:filter>
    <c:comp-filter name="VCALENDAR">
      <c:comp-filter name="VEVENT">%s</c:comp-filter>
    </c:comp-filter>
  </c:filter>
</c:calendar-query>`

// GetCalendarEvents issues a REPORT calendar-query against one calendar
// collection and parses each returned calendar-data block. Zero time bounds
// omit the time-range filter.
func (c *Client) GetCalendarEvents(ctx context.Context, calendarURL string, timeMin, timeMax time.Time) ([]Event, error) {
	timeRange := ""
	if !timeMin.IsZero() && !timeMax.IsZero() {
		timeRange = fmt.Sprintf(`<c:time-range start="%s" end="%s"/>`,
			timeMin.UTC().Format("20060102T150405Z"),
			timeMax.UTC().Format("20060102T150405Z"))
	}

	body, err := c.do(ctx, "REPORT", calendarURL, fmt.Sprintf(queryBodyTemplate, timeRange))
	if err != nil {
		return nil, err
	}

	ms, err := parseMultistatus(body)
	if err != nil {
		return nil, fmt.Errorf("parsing event list: %w", err)
	}

	var events []Event
	for _, resp := range ms.Responses {
		for _, ps := range resp.Propstat {
			if !ps.ok() || ps.Prop.CalendarData == "" {
				continue
			}
			parsed, err := ParseEvents(strings.NewReader(ps.Prop.CalendarData))
			if err != nil {
				continue
			}
			events = append(events, parsed...)
		}
	}
	return events, nil
}

// do sends one authenticated request and returns the response body.
// 2xx (including 207 Multi-Status) is success; anything else is a StatusError.
func (c *Client) do(ctx context.Context, method, path, body string) ([]byte, error) {
	url := path
	if !strings.HasPrefix(path, "http") {
		url = c.baseURL + path
	}

	req, err := http.NewRequestWithContext(ctx, method, url, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	req.Header.Set("Depth", "1")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("caldav %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return data, nil
}

// Multistatus XML shapes per RFC 4918/4791. Parsed with encoding/xml so
// namespace prefixes and attribute order don't matter.

type multistatusXML struct {
	XMLName   xml.Name      `xml:"DAV: multistatus"`
	Responses []responseXML `xml:"DAV: response"`
}

type responseXML struct {
	Href     string        `xml:"DAV: href"`
	Propstat []propstatXML `xml:"DAV: propstat"`
}

type propstatXML struct {
	Status string  `xml:"DAV: status"`
	Prop   propXML `xml:"DAV: prop"`
}

func (p *propstatXML) ok() bool {
	return strings.Contains(p.Status, "200")
}

type propXML struct {
	DisplayName  *string          `xml:"DAV: displayname"`
	ResourceType *resourceTypeXML `xml:"DAV: resourcetype"`
	CTag         *string          `xml:"http://calendarserver.org/ns/ getctag"`
	CalendarData string           `xml:"urn:ietf:params:xml:ns:caldav calendar-data"`
}

type resourceTypeXML struct {
	Calendar *struct{} `xml:"urn:ietf:params:xml:ns:caldav calendar"`
}

func parseMultistatus(data []byte) (*multistatusXML, error) {
	var ms multistatusXML
	if err := xml.Unmarshal(data, &ms); err != nil {
		return nil, err
	}
	return &ms, nil
}
