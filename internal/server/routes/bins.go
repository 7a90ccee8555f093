package routes

import (
	"sort"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/static-cache/internal/fallback"
	"github.com/any-hub/static-cache/internal/server"
)

// RegisterBinRoutes 暴露 /-/bins 与 /-/fallbacks 诊断接口，供运维查询 Bin 策略与 fallback 绑定关系。
func RegisterBinRoutes(app *fiber.App, registry *server.BinRegistry) {
	if app == nil || registry == nil {
		return
	}

	app.Get("/-/bins", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"bins": encodeBins(registry.List()),
		})
	})

	app.Get("/-/bins/:bin", func(c fiber.Ctx) error {
		name := c.Params("bin")
		if name == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bin_required"})
		}
		route, ok := registry.Lookup(name)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "bin_not_found"})
		}
		return c.JSON(encodeBin(*route))
	})

	app.Get("/-/fallbacks", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"fallbacks": encodeFallbacks(fallback.List(), registry.List()),
		})
	})
}

type binPayload struct {
	Name             string   `json:"name"`
	Policy           string   `json:"policy"`
	GetAllowed       bool     `json:"get_allowed"`
	AddAllowed       bool     `json:"add_allowed"`
	UpdateAllowed    bool     `json:"update_allowed"`
	DeleteAllowed    bool     `json:"delete_allowed"`
	Whitelist        []string `json:"whitelist"`
	UpdateIgnoreKeys []string `json:"update_ignore_keys"`
	FallbackClass    string   `json:"fallback_class"`
	CacheDirectory   string   `json:"cache_directory"`
}

type fallbackPayload struct {
	Key         string   `json:"key"`
	Description string   `json:"description"`
	Shared      bool     `json:"shared"`
	Bins        []string `json:"bins"`
}

func encodeBins(routes []server.BinRoute) []binPayload {
	if len(routes) == 0 {
		return nil
	}
	sort.Slice(routes, func(i, j int) bool {
		return routes[i].Config.Name < routes[j].Config.Name
	})
	result := make([]binPayload, 0, len(routes))
	for _, route := range routes {
		result = append(result, encodeBin(route))
	}
	return result
}

func encodeBin(route server.BinRoute) binPayload {
	cfg := route.Config
	whitelist := []string{}
	if route.Cache != nil {
		whitelist = append(whitelist, route.Cache.Policy().WhitelistCids()...)
	}
	return binPayload{
		Name:             cfg.Name,
		Policy:           cfg.PolicySummary(),
		GetAllowed:       cfg.GetAllowed,
		AddAllowed:       cfg.AddAllowed,
		UpdateAllowed:    cfg.UpdateAllowed,
		DeleteAllowed:    cfg.DeleteAllowed,
		Whitelist:        whitelist,
		UpdateIgnoreKeys: append([]string{}, cfg.UpdateIgnoreKeys...),
		FallbackClass:    route.FallbackClass,
		CacheDirectory:   route.CacheDirectory,
	}
}

func encodeFallbacks(defs []fallback.Definition, routes []server.BinRoute) []fallbackPayload {
	if len(defs) == 0 {
		return nil
	}
	usage := make(map[string][]string, len(defs))
	for _, route := range routes {
		usage[route.FallbackClass] = append(usage[route.FallbackClass], route.Config.Name)
	}
	result := make([]fallbackPayload, 0, len(defs))
	for _, def := range defs {
		bins := usage[def.Key]
		sort.Strings(bins)
		if bins == nil {
			bins = []string{}
		}
		result = append(result, fallbackPayload{
			Key:         def.Key,
			Description: def.Description,
			Shared:      def.Shared,
			Bins:        bins,
		})
	}
	return result
}
