package api

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/static-cache/internal/cache"
	"github.com/any-hub/static-cache/internal/logging"
	"github.com/any-hub/static-cache/internal/server"
)

const emptyProbe = "-/empty"

// Handler 负责把 Fiber 请求分派到 BinRoute 上的装饰器，并输出结构化访问日志。
type Handler struct {
	logger *logrus.Logger
}

// NewHandler constructs a cache handler sharing the process logger.
func NewHandler(logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{logger: logger}
}

// setRequest 是 PUT 请求体；Expire 省略时视为永久。
type setRequest struct {
	Data   json.RawMessage `json:"data"`
	Expire *cache.Expire   `json:"expire"`
}

// Handle 根据 HTTP 方法执行对应的缓存操作，协作方出错时返回 502。
func (h *Handler) Handle(c fiber.Ctx, route *server.BinRoute) error {
	started := time.Now()
	cid, err := cidParam(c)
	if err != nil {
		return h.writeError(c, fiber.StatusBadRequest, "invalid_cid")
	}

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var op string
	switch c.Method() {
	case fiber.MethodGet:
		switch {
		case cid == emptyProbe:
			op = "is_empty"
			err = h.isEmpty(ctx, c, route)
		case cid == "":
			op = "get_multiple"
			err = h.getMultiple(ctx, c, route)
		default:
			op = "get"
			err = h.get(ctx, c, route, cid)
		}
	case fiber.MethodPut:
		op = "set"
		err = h.set(ctx, c, route, cid)
	case fiber.MethodDelete:
		op = "clear"
		err = h.clear(ctx, c, route, cid)
	default:
		return h.writeError(c, fiber.StatusMethodNotAllowed, "method_not_allowed")
	}

	h.logResult(c, route, op, cid, started, err)
	if err != nil {
		return h.writeError(c, fiber.StatusBadGateway, "backend_error")
	}
	return nil
}

func (h *Handler) get(ctx context.Context, c fiber.Ctx, route *server.BinRoute, cid string) error {
	obj, ok, err := route.Cache.Get(ctx, cid)
	if err != nil {
		return err
	}
	setWhitelistHeader(c, route, cid)
	if !ok {
		return h.writeError(c, fiber.StatusNotFound, "cache_miss")
	}
	return c.JSON(obj)
}

func (h *Handler) getMultiple(ctx context.Context, c fiber.Ctx, route *server.BinRoute) error {
	cids := splitCids(c.Query("cids"))
	if len(cids) == 0 {
		return h.writeError(c, fiber.StatusBadRequest, "cids_required")
	}
	found, missing, err := route.Cache.GetMultiple(ctx, cids)
	if err != nil {
		return err
	}
	if missing == nil {
		missing = []string{}
	}
	return c.JSON(fiber.Map{
		"found":   found,
		"missing": missing,
	})
}

func (h *Handler) set(ctx context.Context, c fiber.Ctx, route *server.BinRoute, cid string) error {
	if cid == "" || cid == emptyProbe {
		return h.writeError(c, fiber.StatusBadRequest, "cid_required")
	}
	var req setRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil || len(req.Data) == 0 {
		return h.writeError(c, fiber.StatusBadRequest, "invalid_body")
	}
	expire := cache.Permanent
	if req.Expire != nil {
		expire = *req.Expire
	}

	stored, err := route.Cache.Set(ctx, cid, req.Data, expire)
	if err != nil {
		return err
	}
	setWhitelistHeader(c, route, cid)
	if !stored {
		return h.writeError(c, fiber.StatusConflict, "write_rejected")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) clear(ctx context.Context, c fiber.Ctx, route *server.BinRoute, cid string) error {
	wildcard, _ := strconv.ParseBool(c.Query("wildcard"))
	if err := route.Cache.Clear(ctx, cid, wildcard); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) isEmpty(ctx context.Context, c fiber.Ctx, route *server.BinRoute) error {
	empty, err := route.Cache.IsEmpty(ctx)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"bin":   route.Config.Name,
		"empty": empty,
	})
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(c fiber.Ctx, route *server.BinRoute, op, cid string, started time.Time, err error) {
	fields := logging.RouteFields(route.Config.Name, op, cid, "")
	delete(fields, "route")
	fields["action"] = "cache_request"
	fields["status"] = c.Response().StatusCode()
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if reqID := server.RequestID(c); reqID != "" {
		fields["request_id"] = reqID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("cache_request_failed")
		return
	}
	h.logger.WithFields(fields).Info("cache_request_complete")
}

// cidParam 取出通配段并反转义，使包含 "/" 或 ":" 的 cid 可以安全传输。
func cidParam(c fiber.Ctx) (string, error) {
	raw := strings.TrimPrefix(c.Params("*"), "/")
	if raw == "" {
		return "", nil
	}
	return url.PathUnescape(raw)
}

func splitCids(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

func setWhitelistHeader(c fiber.Ctx, route *server.BinRoute, cid string) {
	if route.Cache.Policy().IsCidWhitelisted(route.Cache.QualifiedCid(cid)) {
		c.Set("X-Static-Cache", "static")
		return
	}
	c.Set("X-Static-Cache", "fallback")
}
