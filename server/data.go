package server

import (
	"errors"
	"io"
	"net"
	"syscall"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/scorchedearth/scorched/serp"
)

// pump forwards bytes both ways until one side hangs up, then closes both.
func (s *Server) pump(entry *log.Entry, host, joiner *serp.Stream) {
	s.metrics.sessionStarted()
	defer s.metrics.sessionEnded()

	var g errgroup.Group
	g.Go(func() error { return s.forward(joiner, host) })
	g.Go(func() error { return s.forward(host, joiner) })

	if err := g.Wait(); err != nil {
		entry.Debugf("relay ended with error: %s", err)
	} else {
		entry.Infof("relay ended")
	}
}

// forward copies src into dst. Whatever stops the copy, both connections
// are closed so the opposite direction stops as well.
func (s *Server) forward(dst, src *serp.Stream) error {
	n, err := io.Copy(dst, src)
	s.metrics.transferred(n)

	s.drop(dst)
	s.drop(src)

	if err == nil || closedErr(err) {
		return nil
	}
	return err
}

// closedErr reports whether err is just one of the connections going away.
func closedErr(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
