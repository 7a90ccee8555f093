// Package fallback 聚合静态文件装饰器可委托的通用缓存实现，并提供统一的注册入口。
//
// 实现作者需要：
//   1. 在 internal/fallback/<class>/ 目录下实现 cache.Backend；
//   2. 通过本包暴露的 MustRegister 在 init() 中注册 Definition；
//   3. 在 internal/config/fallbacks.go 中以空白导入启用该实现，配置校验才能识别其 class。
//
// 每个 Bin 通过 FallbackClass 选择实现，New 按 class 构造一个绑定到该 Bin 的实例。
package fallback
