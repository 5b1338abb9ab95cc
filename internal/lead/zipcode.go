package lead

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/logger"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// CityLookup 根据邮编查城市，查不到返回空字符串
type CityLookup interface {
	CityForZip(ctx context.Context, zip string) string
}

// ZipCityLookup 通过 zippopotam.us 风格的接口查询城市名
type ZipCityLookup struct {
	baseURL string
	timeout time.Duration
	client  *fasthttp.Client
}

func NewZipCityLookup(baseURL string, timeout time.Duration) *ZipCityLookup {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &ZipCityLookup{
		baseURL: baseURL,
		timeout: timeout,
		client: &fasthttp.Client{
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: 90 * time.Second,
			MaxConnsPerHost:     16,
		},
	}
}

type zipResponse struct {
	Places []struct {
		PlaceName string `json:"place name"`
	} `json:"places"`
}

// CityForZip 只使用邮编的前5位数字，任何失败都返回空字符串
func (l *ZipCityLookup) CityForZip(ctx context.Context, zip string) string {
	digits := digitsOnly(zip)
	if len(digits) < 5 {
		return ""
	}
	digits = digits[:5]

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseResponse(resp)
		fasthttp.ReleaseRequest(req)
	}()
	req.SetRequestURI(l.baseURL + digits)
	req.Header.SetMethod(fasthttp.MethodGet)

	timeout := l.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if err := l.client.DoTimeout(req, resp, timeout); err != nil {
		logger.WarnCtx(ctx, "邮编查询城市失败", zap.String("zip", digits), zap.Error(err))
		return ""
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return ""
	}

	var body zipResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil || len(body.Places) == 0 {
		return ""
	}
	return strings.TrimSpace(body.Places[0].PlaceName)
}
