// Package staticcache 实现静态文件缓存装饰器：白名单内的 cid 由磁盘上的静态文件承载，
// 其余 cid 透传给按 Bin 配置的 fallback 缓存。每种操作是否允许走静态文件路径由
// Provider 决定；装饰器本身不加锁、不重试，错误原样返回给调用方。
package staticcache
