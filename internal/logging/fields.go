package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RouteFields 描述一次缓存操作的去向：route 取值 static、fallback 或 denied。
func RouteFields(bin, op, cid, route string) logrus.Fields {
	fields := logrus.Fields{
		"bin":   bin,
		"op":    op,
		"route": route,
	}
	if cid != "" {
		fields["cid"] = cid
	}
	return fields
}
