//go:build linux

package middleware

import (
	"log/slog"
	"net/netip"

	"github.com/touka-aoi/low-level-relay/core/endpoint"
)

// Context carries one received message through the pipeline. Data may be
// replaced or modified in place; whatever is left is what gets sent.
type Context struct {
	Data       []byte
	Endpoint   endpoint.Endpoint
	RemoteAddr netip.AddrPort
	Metadata   map[string]interface{}
}

type NextFunc func(*Context) error
type MiddlewareFunc func(*Context, NextFunc) error

type Pipeline struct {
	middlewares []MiddlewareFunc
}

func NewPipeline() *Pipeline {
	return &Pipeline{
		middlewares: make([]MiddlewareFunc, 0),
	}
}

func (p *Pipeline) Use(middleware MiddlewareFunc) *Pipeline {
	p.middlewares = append(p.middlewares, middleware)
	return p
}

func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

func (p *Pipeline) Execute(ctx *Context) error {
	return p.executeMiddleware(0, ctx)
}

func (p *Pipeline) executeMiddleware(index int, ctx *Context) error {
	if index >= len(p.middlewares) {
		return nil
	}

	next := func(ctx *Context) error {
		return p.executeMiddleware(index+1, ctx)
	}

	return p.middlewares[index](ctx, next)
}

func NewContext(data []byte, ep endpoint.Endpoint, remoteAddr netip.AddrPort) *Context {
	return &Context{
		Data:       data,
		Endpoint:   ep,
		RemoteAddr: remoteAddr,
		Metadata:   make(map[string]interface{}),
	}
}

// Uppercase folds ASCII letters to upper case in place. Other bytes,
// including UTF-8 sequences, pass through so the length never changes.
func Uppercase(ctx *Context, next NextFunc) error {
	ToUpperASCII(ctx.Data)
	return next(ctx)
}

// Logging writes one debug line per message.
func Logging(ctx *Context, next NextFunc) error {
	slog.Debug("Message", "fd", ctx.Endpoint.Fd(), "remoteAddr", ctx.RemoteAddr, "dataLength", len(ctx.Data))
	return next(ctx)
}

func ToUpperASCII(b []byte) {
	for i, c := range b {
		if 'a' <= c && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
}
