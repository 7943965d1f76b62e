package proxy

import "net/url"

// BrowserMock replays a scripted sequence of navigation requests.
type BrowserMock struct {
	// Requests are reported to shouldLoad in order until it returns false.
	Requests []NavigationRequest
	// Err, when set, is returned after all requests are reported.
	Err error
}

var _ Browser = (*BrowserMock)(nil)

func (m *BrowserMock) Load(_ *url.URL, shouldLoad func(NavigationRequest) bool) error {
	for _, req := range m.Requests {
		if !shouldLoad(req) {
			return nil
		}
	}
	return m.Err
}
