package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/plugrail/plugrail/internal/engine/constant"
	httpx "github.com/plugrail/plugrail/pkg/http"
)

// UnifiedResponseMiddleware 统一响应中间件
// c.Locals(constant.DETAIL, value) 用于设置响应数据
func UnifiedResponseMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err != nil {
			return err
		}

		// 响应体已由 handler 自行写出（例如资源文件下载）
		if c.Locals(constant.RAW) != nil {
			return nil
		}

		if c.Response().StatusCode() != fiber.StatusOK {
			return httpx.WithRepErrMsg(c, httpx.Failed.Code, httpx.Failed.Msg, c.Path())
		}

		if c.Response().StatusCode() >= fiber.StatusOK && c.Response().StatusCode() < fiber.StatusMultipleChoices {
			if detail := c.Locals(constant.DETAIL); detail != nil {
				return httpx.WithRepJSON(c, detail)
			}

			// 业务逻辑正确, 无响应数据, 只返回结果
			if c.Locals(constant.OPERATION) != nil {
				return httpx.WithRepNotDetail(c)
			}
		}

		return nil
	}
}
