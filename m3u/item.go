package m3u

import "net/url"

// Item is one playlist record as scanned: the entry metadata paired with its
// resolved stream URL. Items are transient; they are turned into channels by
// the channels package and discarded.
type Item struct {
	Title     string
	URL       *url.URL
	Group     string
	Logo      *url.URL
	Bandwidth int
}
