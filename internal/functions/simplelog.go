package functions

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/oriys/nimbus-functions/internal/domain"
)

const simpleLogMessage = "This is a test log message from the Go function!"

// SimpleLog 输出一条固定的 info 日志并返回确认文本。
func SimpleLog(_ context.Context, _ *http.Request, log *logrus.Entry) (*domain.Response, error) {
	log.Info(simpleLogMessage)
	return domain.Text(http.StatusOK, "Function executed. Check logs in Application Insights."), nil
}

// SimpleLogTick 是 SimpleLog 的定时触发版本，只输出同一条日志。
func SimpleLogTick(_ context.Context, _ *domain.Message, log *logrus.Entry) error {
	log.Info(simpleLogMessage)
	return nil
}
