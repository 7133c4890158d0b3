package eventloop

import "time"

// httpDateLayout is IMF-fixdate, spec.md §6: "Tue, 24 Jan 2012 13:05:54 GMT".
// time.RFC1123 is close but uses "MST" instead of a literal "GMT" and
// allows a non-padded day; format by hand against a UTC time instead so
// the cached string is always exactly the wire format (spec.md §9:
// "constructed without strftime").
const httpDateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// clock caches the current time and its IMF-fixdate rendering at 1s
// resolution, refreshed once per epoll wake-up (spec.md §4.1 "Time").
type clock struct {
	now       time.Time
	httpDate  string
	dateAtSec int64
}

func newClock() *clock {
	c := &clock{}
	c.refresh()
	return c
}

// refresh is called once per loop iteration with the monotonic wake-up
// time; it only reformats the HTTP-date string when the wall-clock second
// has changed, per spec.md's "cached formatted HTTP-date string ...
// maintained at 1 s resolution".
func (c *clock) refresh() {
	c.now = time.Now()
	sec := c.now.Unix()
	if sec != c.dateAtSec || c.httpDate == "" {
		c.httpDate = c.now.UTC().Format(httpDateLayout)
		c.dateAtSec = sec
	}
}

func (c *clock) Now() time.Time    { return c.now }
func (c *clock) HTTPDate() string  { return c.httpDate }

// FormatHTTPDate renders an arbitrary time as IMF-fixdate, used for
// Last-Modified/Expires headers whose value isn't "now".
func FormatHTTPDate(t time.Time) string {
	return t.UTC().Format(httpDateLayout)
}

// ParseHTTPDate parses an IMF-fixdate string, accepting the two legacy
// formats HTTP/1.1 also permits on input (RFC 850 and asctime), per
// spec.md §8 property 4's date round-trip requirement.
func ParseHTTPDate(s string) (time.Time, error) {
	for _, layout := range []string{
		httpDateLayout,
		"Monday, 02-Jan-06 15:04:05 GMT",
		"Mon Jan _2 15:04:05 2006",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Parse(time.RFC1123, s)
}
