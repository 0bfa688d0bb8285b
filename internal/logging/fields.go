package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// FileFields 提供单个文件处理日志的公共字段。
func FileFields(runID, action, path string) logrus.Fields {
	return logrus.Fields{
		"run_id": runID,
		"action": action,
		"path":   path,
	}
}
