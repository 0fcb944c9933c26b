package caldav

import (
	"context"
)

type todoClass int

const (
	classCurrent todoClass = iota
	classPast
)

func (k todoClass) filters() []string {
	if k == classPast {
		return []string{FilterCompleted}
	}
	return []string{FilterIncomplete, FilterUndefined}
}

func (st *calendarState) slot(k todoClass) *Snapshot {
	if k == classPast {
		return st.past
	}
	return st.current
}

func (st *calendarState) setSlot(k todoClass, s *Snapshot) {
	if k == classPast {
		st.past = s
	} else {
		st.current = s
	}
}

// RefreshCalendar re-reads the calendar's properties. changed is true when
// the ctag differs from the stored one or the server reports none. The new
// metadata is stored either way; cached todos stay labelled with the ctag
// they were fetched under.
func (c *Client) RefreshCalendar(ctx context.Context, cal *Calendar) (changed bool, err error) {
	cal.mu.Lock()
	defer cal.mu.Unlock()
	md, err := c.fetchMetadata(ctx, cal)
	if err != nil {
		return false, err
	}
	st := cal.load()
	changed = md.CTag == "" || md.CTag != st.md.CTag
	if md != st.md {
		next := *st
		next.md = md
		cal.state.Store(&next)
	}
	return changed, nil
}

func (c *Client) fetchMetadata(ctx context.Context, cal *Calendar) (Metadata, error) {
	root, err := c.request(ctx, OpRefresh, "PROPFIND", cal.url, "0", propfindBody(calendarProps))
	if err != nil {
		return Metadata{}, err
	}
	resps, err := responses(root)
	if err != nil {
		return Metadata{}, &ProtocolError{Op: OpRefresh, URL: cal.url, Err: err}
	}
	for _, resp := range resps {
		if md, ok := parseMetadata(resp, cal.url); ok {
			return md, nil
		}
	}
	return Metadata{}, &ProtocolError{Op: OpRefresh, URL: cal.url, Err: ErrMissingNode}
}

// GetCurrentTodos returns the incomplete todos of cal: those below 100
// percent, then those with no PERCENT-COMPLETE at all. The result is cached
// until the calendar's ctag changes.
func (c *Client) GetCurrentTodos(ctx context.Context, cal *Calendar) (*Snapshot, error) {
	got, err := c.cached(ctx, cal, classCurrent)
	if err != nil {
		return nil, err
	}
	return got[0], nil
}

// GetPastTodos returns the completed todos of cal, cached like
// GetCurrentTodos.
func (c *Client) GetPastTodos(ctx context.Context, cal *Calendar) (*Snapshot, error) {
	got, err := c.cached(ctx, cal, classPast)
	if err != nil {
		return nil, err
	}
	return got[0], nil
}

// GetTodos returns both classes behind a single refresh.
func (c *Client) GetTodos(ctx context.Context, cal *Calendar) (current, past *Snapshot, err error) {
	got, err := c.cached(ctx, cal, classCurrent, classPast)
	if err != nil {
		return nil, nil, err
	}
	return got[0], got[1], nil
}

// GetAllTodos fetches every todo of cal without touching the cache.
func (c *Client) GetAllTodos(ctx context.Context, cal *Calendar) (*Snapshot, error) {
	return c.FetchTodos(ctx, cal, FilterAll)
}

// cached serves each class from cal's cache when a slot exists and the
// server ctag still matches it, fetching otherwise. Metadata is only
// refreshed when there is a slot to validate. State is stored once, after
// every fetch succeeded.
func (c *Client) cached(ctx context.Context, cal *Calendar, classes ...todoClass) ([]*Snapshot, error) {
	cal.mu.Lock()
	defer cal.mu.Unlock()

	st := cal.load()
	md := st.md
	for _, k := range classes {
		if st.slot(k) != nil {
			fresh, err := c.fetchMetadata(ctx, cal)
			if err != nil {
				return nil, err
			}
			md = fresh
			break
		}
	}

	next := *st
	next.md = md
	dirty := md != st.md
	out := make([]*Snapshot, len(classes))
	for i, k := range classes {
		if s := st.slot(k); s.valid(md.CTag) {
			out[i] = s
			continue
		}
		s, err := c.fetch(ctx, cal, md.CTag, k.filters()...)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("fetched todos", "calendar", md.Name, "ctag", md.CTag, "count", s.Len())
		next.setSlot(k, s)
		out[i] = s
		dirty = true
	}
	if dirty {
		cal.state.Store(&next)
	}
	return out, nil
}
