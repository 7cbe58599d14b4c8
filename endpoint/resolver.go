// Package endpoint works out where the notes backend lives for a given deployment.
package endpoint

import (
	"fmt"
	"net"
	"strings"
)

const (
	// InternalBaseURL is the backend address inside the service network.
	InternalBaseURL = "http://backend:8000"
	// LocalBaseURL is the backend address during local development.
	LocalBaseURL = "http://localhost:8000"
	// ProxyPath is where the reverse proxy mounts the backend.
	ProxyPath = "/api"
)

// Context is everything resolution depends on. It is built once at start-up.
type Context struct {
	Override   string
	ServerSide bool
	Hostname   string
	Protocol   string
}

// Resolve returns the backend base URL. It never fails; a wrong answer only
// shows up as network errors at the call sites.
func Resolve(c Context) string {
	if o := strings.TrimSpace(c.Override); o != "" {
		return strings.TrimRight(o, "/")
	}
	if c.ServerSide {
		return InternalBaseURL
	}

	host := hostname(c.Hostname)
	if isLoopback(host) {
		return LocalBaseURL
	}

	proto := strings.TrimSpace(c.Protocol)
	if proto == "" {
		proto = "http:"
	}
	if !strings.HasSuffix(proto, ":") {
		proto += ":"
	}
	return fmt.Sprintf("%s//%s%s", proto, host, ProxyPath)
}

// hostname drops any port, like a browser's location.hostname (不加端口号).
func hostname(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if strings.Contains(host, ":") {
		return "[" + host + "]"
	}
	return host
}

// 空主机名视为本地开发环境。
func isLoopback(host string) bool {
	switch strings.ToLower(strings.Trim(host, "[]")) {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// Endpoints derives every backend URL from one base.
type Endpoints struct {
	Base string
}

func New(base string) Endpoints {
	return Endpoints{Base: strings.TrimRight(base, "/")}
}

func (e Endpoints) NotesGenerate() string  { return e.Base + "/notes/generate" }
func (e Endpoints) NotesList() string      { return e.Base + "/notes/" }
func (e Endpoints) ClientAccounts() string { return e.Base + "/client-accounts/" }

func (e Endpoints) NoteDetail(id int64) string {
	return fmt.Sprintf("%s/notes/%d", e.Base, id)
}
