// Package libpd implements engine.Engine on top of libpd through cgo.
//
// The binding is compiled only with the libpd build tag, against an installed
// libpd (headers under /usr/local/include/libpd, library libpd):
//
//	go build -tags libpd ./...
//
// Without the tag, New returns an error and nothing links against libpd.
//
// libpd is a process-wide singleton: there is one engine per process however
// many Engine values are created. Calls into it must not overlap; the host
// serializes control calls, and the audio thread only enters via the exported
// process capability.
package libpd
