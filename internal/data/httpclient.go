package data

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

const userAgent = "citylayers/1.0 (+https://github.com/citylayers)"

// newHTTPClient 外部 HTTP 服务统一使用 kratos 客户端，状态码 >= 400 时返回 *errors.Error。
func newHTTPClient(endpoint string, timeout time.Duration) (*khttp.Client, error) {
	return khttp.NewClient(context.Background(),
		khttp.WithEndpoint(endpoint),
		khttp.WithTimeout(timeout),
		khttp.WithUserAgent(userAgent),
		khttp.WithMiddleware(recovery.Recovery()),
	)
}

// statusCode 取出 kratos 客户端错误中的 HTTP 状态码。
func statusCode(err error) int {
	if err == nil {
		return 0
	}
	return errors.Code(err)
}
