package browser

import "errors"

var (
	// ErrUnknownRoute is returned for link:// URLs with no handler.
	ErrUnknownRoute = errors.New("unknown link:// route")

	// ErrNoElement is returned when an element index is out of range.
	ErrNoElement = errors.New("no such element")

	// ErrNoDownload is returned by Cancel for an unknown download id.
	ErrNoDownload = errors.New("no such download")

	// ErrDownloadsClosed is returned by Start after Close.
	ErrDownloadsClosed = errors.New("downloads closed")
)
