package server

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/scorchedearth/scorched/serp"
)

// room ids are argon2 hashes, the tail is enough to tell them apart in logs
const roomLogLen = 12

func shortID(id string) string {
	if len(id) <= roomLogLen {
		return id
	}
	return id[len(id)-roomLogLen:]
}

// accept reads the request line and dispatches it.
func (s *Server) accept(conn net.Conn) {
	entry := log.WithFields(log.Fields{
		"session": uuid.NewString(),
		"remote":  conn.RemoteAddr().String(),
	})
	stream := serp.NewStream(conn)

	m, id, err := s.readRequest(stream)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			entry.Debugf("invalid request: %s", err)
		}
		s.metrics.request("unknown", resultInvalid)
		_ = stream.WriteString(serp.RespInvalid)
		s.drop(stream)
		return
	}
	entry = entry.WithField("room", shortID(id))

	switch m {
	case serp.MethodHost:
		s.host(entry, stream, id)
	case serp.MethodConn:
		s.join(entry, stream, id)
	}
}

func (s *Server) readRequest(stream *serp.Stream) (serp.Method, string, error) {
	if err := stream.SetReadDeadline(time.Now().Add(s.cfg.RequestTimeout)); err != nil {
		return "", "", err
	}
	line, err := stream.ReadLine()
	if err != nil {
		return "", "", err
	}
	m, id, err := serp.ParseRequest(line)
	if err != nil {
		return "", "", err
	}
	return m, id, stream.SetReadDeadline(time.Time{})
}

func (s *Server) host(entry *log.Entry, stream *serp.Stream, id string) {
	r, err := s.registry.Host(id, stream)
	if err != nil {
		entry.Debugf("can't host: %s", err)
		s.metrics.request(string(serp.MethodHost), resultFail)
		_ = stream.WriteString(serp.RespFail)
		s.drop(stream)
		return
	}
	// from here on the room owns the stream
	s.untrack(stream.Conn)

	if s.inShutdown.Load() {
		s.registry.evict(r)
		r.markReady()
		s.metrics.request(string(serp.MethodHost), resultShutdown)
		return
	}

	if err := stream.WriteString(serp.RespOK); err != nil {
		entry.Debugf("failed to acknowledge host: %s", err)
		s.registry.evict(r)
		r.markReady()
		s.metrics.request(string(serp.MethodHost), resultAbandon)
		return
	}
	r.markReady()

	s.metrics.request(string(serp.MethodHost), resultOK)
	entry.Infof("host is waiting for a partner")
}

func (s *Server) join(entry *log.Entry, stream *serp.Stream, id string) {
	r, err := s.registry.Take(id)
	if err != nil {
		entry.Debugf("can't join: %s", err)
		s.metrics.request(string(serp.MethodConn), resultFail)
		_ = stream.WriteString(serp.RespFail)
		s.drop(stream)
		return
	}
	host := r.stream
	// the pair belongs to this goroutine now, keep it visible to Shutdown
	if !s.track(host.Conn) {
		_ = host.Close()
		s.drop(stream)
		s.metrics.request(string(serp.MethodConn), resultShutdown)
		return
	}

	// the host must see "ok" before "connected"
	<-r.ready

	if err := stream.WriteString(serp.RespOK); err != nil {
		entry.Debugf("failed to acknowledge joiner: %s", err)
		s.metrics.request(string(serp.MethodConn), resultAbandon)
		s.drop(host)
		s.drop(stream)
		return
	}
	for _, peer := range []*serp.Stream{host, stream} {
		if err := peer.WriteString(serp.RespConnected); err != nil {
			entry.Debugf("failed to notify %s: %s", peer.RemoteAddr(), err)
			s.metrics.request(string(serp.MethodConn), resultAbandon)
			s.drop(host)
			s.drop(stream)
			return
		}
	}
	s.metrics.request(string(serp.MethodConn), resultOK)

	entry.Infof("paired %s with %s", host.RemoteAddr(), stream.RemoteAddr())
	s.pump(entry, host, stream)
}

// drop closes a stream this goroutine owns.
func (s *Server) drop(stream *serp.Stream) {
	s.untrack(stream.Conn)
	if err := stream.Close(); err != nil {
		log.Debugf("failed to close connection %s: %s", stream.RemoteAddr(), err)
	}
}
