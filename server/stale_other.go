//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package server

import "github.com/scorchedearth/scorched/serp"

func peerClosed(s *serp.Stream) bool {
	return peekClosed(s)
}
