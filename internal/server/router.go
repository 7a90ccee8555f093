package server

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CacheHandler describes the component that serves cache operations for a
// resolved bin. It allows injecting fake handlers during tests.
type CacheHandler interface {
	Handle(fiber.Ctx, *BinRoute) error
}

// CacheHandlerFunc adapts a function to the CacheHandler interface.
type CacheHandlerFunc func(fiber.Ctx, *BinRoute) error

// Handle makes CacheHandlerFunc satisfy CacheHandler.
func (f CacheHandlerFunc) Handle(c fiber.Ctx, route *BinRoute) error {
	return f(c, route)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	Registry   *BinRegistry
	Handler    CacheHandler
	ListenPort int
}

const (
	contextKeyRoute     = "_staticcache_route"
	contextKeyRequestID = "_staticcache_request_id"
)

// NewApp builds a Fiber application with request-id and bin resolution
// middleware and structured error handling.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("bin registry is required")
	}
	if opts.Handler == nil {
		return nil, errors.New("cache handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	serve := func(c fiber.Ctx) error {
		route, _ := getRouteFromContext(c)
		return opts.Handler.Handle(c, route)
	}
	resolve := binMiddleware(opts)
	app.All("/cache/:bin", resolve, serve)
	app.All("/cache/:bin/*", resolve, serve)

	return app, nil
}

// requestIDMiddleware 为每个请求生成请求 ID，并回写 X-Request-ID 头。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// binMiddleware 基于 :bin 参数查找 BinRoute，未知 Bin 直接返回 404。
func binMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		name := c.Params("bin")
		route, ok := opts.Registry.Lookup(name)
		if !ok {
			return renderBinNotFound(c, opts.Logger, name)
		}
		c.Locals(contextKeyRoute, route)
		return c.Next()
	}
}

func renderBinNotFound(c fiber.Ctx, logger *logrus.Logger, bin string) error {
	logger.WithFields(logrus.Fields{
		"action":     "bin_lookup",
		"bin":        bin,
		"request_id": RequestID(c),
	}).Warn("bin not configured")

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "bin_not_found",
	})
}

func getRouteFromContext(c fiber.Ctx) (*BinRoute, bool) {
	if value := c.Locals(contextKeyRoute); value != nil {
		if route, ok := value.(*BinRoute); ok {
			return route, true
		}
	}
	return nil, false
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
