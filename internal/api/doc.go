// Package api 将 /cache/:bin 下的 HTTP 请求翻译为缓存操作：
// GET 读取（单个 cid 或 ?cids= 批量），PUT 写入，DELETE 清理，GET /-/empty 查询是否为空。
package api
