// Package caldav reads canonical events live from a CalDAV collection, for
// deployments where the system of record is a calendar server rather than a
// local database. Each VEVENT maps to one canonical event; a VEVENT carrying
// an RRULE is a series master, since CalDAV stores a series as a single
// object rather than expanded occurrences.
//
// Sync bookkeeping (platform backrefs, last-written timestamps) is persisted
// on the VEVENT itself as X- properties, so it survives restarts without a
// side database.
package caldav

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/beevik/etree"
	"github.com/emersion/go-ical"

	"github.com/ferrydust/guildsync/storage"
)

const (
	propPlatformEventID = "X-GUILDSYNC-PLATFORM-EVENT-ID"
	propMasterEventID   = "X-GUILDSYNC-MASTER-EVENT-ID"
	propLastWrittenAt   = "X-GUILDSYNC-LAST-WRITTEN-AT"
)

// Source is a storage.CanonicalStore backed by a CalDAV collection.
type Source struct {
	client   *http.Client
	calendar *url.URL
	username string
	password string
	logger   *slog.Logger

	mu    sync.Mutex
	index map[string]objectRef // UID -> collection member
}

// objectRef locates a calendar object within the collection. Etags are
// remembered from the last REPORT so updates can be conditional.
type objectRef struct {
	href string
	etag string
}

// Options configures a Source.
type Options struct {
	// URL is the calendar collection URL, e.g.
	// https://cal.example.com/alice/events/.
	URL string

	// Username and Password are sent as HTTP basic auth when non-empty.
	Username string
	Password string

	// Client is the HTTP client to use; http.DefaultClient when nil.
	Client *http.Client

	// Logger receives request-level debug logging.
	Logger *slog.Logger
}

// New creates a CalDAV-backed canonical store.
func New(opts Options) (*Source, error) {
	if opts.URL == "" {
		return nil, errors.New("caldav: collection URL is empty")
	}
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("caldav: parse URL %q: %w", opts.URL, err)
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		client:   client,
		calendar: u,
		username: opts.Username,
		password: opts.Password,
		logger:   logger,
		index:    make(map[string]objectRef),
	}, nil
}

// ListEvents implements storage.CanonicalStore. It issues a calendar-query
// REPORT for all VEVENTs in the collection and rebuilds the UID index.
func (s *Source) ListEvents(ctx context.Context) ([]storage.CanonicalEvent, error) {
	body := calendarQueryBody()

	resp, err := s.doREPORT(ctx, body)
	if err != nil {
		return nil, err
	}

	events := make([]storage.CanonicalEvent, 0, len(resp.Responses))
	index := make(map[string]objectRef, len(resp.Responses))
	for _, r := range resp.Responses {
		if r.PropStat.Status != "HTTP/1.1 200 OK" {
			continue
		}
		if r.PropStat.Prop.CalendarData == "" {
			continue
		}

		cal, err := ical.NewDecoder(bytes.NewReader([]byte(r.PropStat.Prop.CalendarData))).Decode()
		if err != nil {
			return nil, fmt.Errorf("caldav: parse calendar data at %s: %w", r.Href, err)
		}
		for _, event := range cal.Events() {
			ev, ok := eventToCanonical(event)
			if !ok {
				s.logger.Debug("skipping calendar object without UID or DTSTART", "href", r.Href)
				continue
			}
			events = append(events, ev)
			index[ev.SourceEventID] = objectRef{href: r.Href, etag: r.PropStat.Prop.ETag}
		}
	}

	sort.Slice(events, func(i, j int) bool {
		if !events[i].StartAt.Equal(events[j].StartAt) {
			return events[i].StartAt.Before(events[j].StartAt)
		}
		return events[i].SourceEventID < events[j].SourceEventID
	})

	s.mu.Lock()
	s.index = index
	s.mu.Unlock()

	s.logger.Debug("listed calendar collection", "events", len(events))
	return events, nil
}

// UpdateEvent implements storage.CanonicalStore. The event is re-rendered as
// a VEVENT (bookkeeping carried in X- properties) and PUT back with If-Match
// so concurrent edits on the server are not clobbered.
func (s *Source) UpdateEvent(ctx context.Context, ev storage.CanonicalEvent) error {
	s.mu.Lock()
	ref, ok := s.index[ev.SourceEventID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("caldav: update %q: %w", ev.SourceEventID, storage.ErrNotFound)
	}

	ics, err := canonicalToICS(ev)
	if err != nil {
		return fmt.Errorf("caldav: encode %q: %w", ev.SourceEventID, err)
	}

	newEtag, err := s.doPUT(ctx, ref.href, ref.etag, []byte(ics))
	if err != nil {
		return fmt.Errorf("caldav: update %q: %w", ev.SourceEventID, err)
	}

	s.mu.Lock()
	s.index[ev.SourceEventID] = objectRef{href: ref.href, etag: newEtag}
	s.mu.Unlock()
	return nil
}

// calendarQueryBody builds the REPORT request document: a calendar-query
// asking for getetag plus calendar-data of every VEVENT.
func calendarQueryBody() []byte {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	query := doc.CreateElement("C:calendar-query")
	query.CreateAttr("xmlns:D", "DAV:")
	query.CreateAttr("xmlns:C", "urn:ietf:params:xml:ns:caldav")

	prop := query.CreateElement("D:prop")
	prop.CreateElement("D:getetag")
	prop.CreateElement("C:calendar-data")

	filter := query.CreateElement("C:filter")
	vcal := filter.CreateElement("C:comp-filter")
	vcal.CreateAttr("name", "VCALENDAR")
	vevent := vcal.CreateElement("C:comp-filter")
	vevent.CreateAttr("name", "VEVENT")

	out, _ := doc.WriteToBytes()
	return out
}

// reportResponse is the multistatus envelope of a REPORT reply.
type reportResponse struct {
	XMLName   xml.Name `xml:"DAV: multistatus"`
	Responses []struct {
		Href     string `xml:"DAV: href"`
		PropStat struct {
			Prop struct {
				CalendarData string `xml:"urn:ietf:params:xml:ns:caldav calendar-data"`
				ETag         string `xml:"DAV: getetag"`
			} `xml:"DAV: prop"`
			Status string `xml:"DAV: status"`
		} `xml:"DAV: propstat"`
	} `xml:"DAV: response"`
}

func (s *Source) doREPORT(ctx context.Context, body []byte) (*reportResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "REPORT", s.calendar.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("caldav: build REPORT request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	req.Header.Set("Depth", "1")
	s.setAuth(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("caldav: REPORT %s: %w", s.calendar, storage.ErrUnavailable)
	}
	defer resp.Body.Close()

	s.logger.Debug("REPORT complete", "url", s.calendar.String(), "status", resp.Status)

	if resp.StatusCode != http.StatusMultiStatus && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("caldav: REPORT %s: unexpected status %d", s.calendar, resp.StatusCode)
	}

	var multi reportResponse
	if err := xml.NewDecoder(resp.Body).Decode(&multi); err != nil {
		return nil, fmt.Errorf("caldav: decode REPORT response: %w", err)
	}
	return &multi, nil
}

func (s *Source) doPUT(ctx context.Context, href, etag string, data []byte) (newEtag string, err error) {
	target, err := s.calendar.Parse(href)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", href, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.String(), bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/calendar; charset=utf-8")
	if etag != "" {
		req.Header.Set("If-Match", etag)
	}
	s.setAuth(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("PUT %s: %w", target, storage.ErrUnavailable)
	}
	defer resp.Body.Close()

	s.logger.Debug("PUT complete", "url", target.String(), "status", resp.Status)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
	case http.StatusPreconditionFailed:
		return "", fmt.Errorf("PUT %s: etag mismatch: %w", target, storage.ErrConflict)
	default:
		return "", fmt.Errorf("PUT %s: unexpected status %d", target, resp.StatusCode)
	}
	return resp.Header.Get("ETag"), nil
}

func (s *Source) setAuth(req *http.Request) {
	if s.username != "" || s.password != "" {
		req.SetBasicAuth(s.username, s.password)
	}
}

// eventToCanonical maps a VEVENT to a canonical event. Returns false when
// the component lacks a UID or DTSTART.
func eventToCanonical(event ical.Event) (storage.CanonicalEvent, bool) {
	var ev storage.CanonicalEvent

	uid, err := event.Props.Text(ical.PropUID)
	if err != nil || uid == "" {
		return ev, false
	}
	start, err := event.Props.DateTime(ical.PropDateTimeStart, time.UTC)
	if err != nil {
		return ev, false
	}

	ev.SourceEventID = uid
	ev.StartAt = start
	ev.Name, _ = event.Props.Text(ical.PropSummary)
	ev.Description, _ = event.Props.Text(ical.PropDescription)
	ev.Location, _ = event.Props.Text(ical.PropLocation)

	if end, err := event.Props.DateTime(ical.PropDateTimeEnd, time.UTC); err == nil {
		ev.EndAt = end
	} else if durProp := event.Props.Get(ical.PropDuration); durProp != nil {
		if dur, err := durProp.Duration(); err == nil {
			ev.EndAt = start.Add(dur)
		}
	}

	if rrule := event.Props.Get(ical.PropRecurrenceRule); rrule != nil && rrule.Value != "" {
		ev.RecurrenceRule = rrule.Value
		ev.RecurringSeriesID = uid
	}

	ev.PlatformEventID, _ = event.Props.Text(propPlatformEventID)
	ev.MasterPlatformEventID, _ = event.Props.Text(propMasterEventID)
	if raw, err := event.Props.Text(propLastWrittenAt); err == nil && raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			ev.LastWrittenAt = t
		}
	}

	return ev, true
}

// canonicalToICS renders a canonical event as a complete iCalendar object.
func canonicalToICS(ev storage.CanonicalEvent) (string, error) {
	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, ev.SourceEventID)
	event.Props.SetText(ical.PropSummary, ev.Name)
	if ev.Description != "" {
		event.Props.SetText(ical.PropDescription, ev.Description)
	}
	if ev.Location != "" {
		event.Props.SetText(ical.PropLocation, ev.Location)
	}
	event.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, ev.StartAt.UTC())
	if !ev.EndAt.IsZero() {
		event.Props.SetDateTime(ical.PropDateTimeEnd, ev.EndAt.UTC())
	}
	if ev.RecurrenceRule != "" {
		// RRULE is RECUR-typed, not TEXT.
		rrule := ical.NewProp(ical.PropRecurrenceRule)
		rrule.Value = ev.RecurrenceRule
		event.Props.Set(rrule)
	}
	if ev.PlatformEventID != "" {
		event.Props.SetText(propPlatformEventID, ev.PlatformEventID)
	}
	if ev.MasterPlatformEventID != "" {
		event.Props.SetText(propMasterEventID, ev.MasterPlatformEventID)
	}
	if !ev.LastWrittenAt.IsZero() {
		event.Props.SetText(propLastWrittenAt, ev.LastWrittenAt.UTC().Format(time.RFC3339Nano))
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//guildsync//Event Sync//EN")
	cal.Children = append(cal.Children, event.Component)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return "", err
	}
	return buf.String(), nil
}
