package main

import (
	"go.uber.org/zap"

	"github.com/valtp/saas-platform/panel-service/internal/logging"
)

func main() {
	defer func() {
		if err := logging.Sync(); err != nil {
			logging.Logger().Debug("failed to sync logger on exit", zap.Error(err))
		}
	}()

	Execute()
}
