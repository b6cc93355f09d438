package types

import (
	"bytes"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Response is a fetched page. Both fetchers produce it; the extractor and
// the link discovery consume it.
type Response struct {
	Request     *Request
	StatusCode  int
	ContentType string
	// FinalURL is where redirects ended. Relative links resolve against it.
	FinalURL  string
	Body      []byte
	FetchedAt time.Time

	doc    *goquery.Document
	docErr error
	parsed bool
}

// NewResponse records a page as fetched now.
func NewResponse(req *Request, status int, contentType, finalURL string, body []byte) *Response {
	return &Response{
		Request:     req,
		StatusCode:  status,
		ContentType: contentType,
		FinalURL:    finalURL,
		Body:        body,
		FetchedAt:   time.Now().UTC(),
	}
}

// NewHTTPResponse wraps the body read from httpResp.
func NewHTTPResponse(req *Request, httpResp *http.Response, body []byte) *Response {
	return NewResponse(req, httpResp.StatusCode, httpResp.Header.Get("Content-Type"), httpResp.Request.URL.String(), body)
}

// Document parses the body once and returns the same tree on every call.
// A Response is handled by one crawl task, so no locking is needed.
func (r *Response) Document() (*goquery.Document, error) {
	if !r.parsed {
		r.doc, r.docErr = goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
		r.parsed = true
	}
	return r.doc, r.docErr
}

// BaseURL returns the URL relative links on the page resolve against.
func (r *Response) BaseURL() string {
	if r.FinalURL != "" {
		return r.FinalURL
	}
	return r.Request.URLString()
}
