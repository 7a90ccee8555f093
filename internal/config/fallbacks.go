package config

import (
	_ "github.com/any-hub/static-cache/internal/fallback/memory"
	_ "github.com/any-hub/static-cache/internal/fallback/null"
	_ "github.com/any-hub/static-cache/internal/fallback/redis"
)
