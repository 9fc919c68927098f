package middleware

import (
	"bytes"
	"io"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// EnsureUTF8Body 把非 UTF-8 的请求体按 GB18030（兼容 GBK）转为 UTF-8
// Windows 中文终端下的 curl 默认以 GBK 发送中文消息内容
func EnsureUTF8Body() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil && c.Request.ContentLength != 0 {
			c.Request.Body, c.Request.ContentLength = normalizeBody(c.Request.Body, c.Request.ContentLength)
		}
		c.Next()
	}
}

// normalizeBody 读取并重建请求体，读取或转换失败时保留原始字节
func normalizeBody(body io.ReadCloser, length int64) (io.ReadCloser, int64) {
	raw, err := io.ReadAll(body)
	body.Close()
	if err != nil || len(raw) == 0 || utf8.Valid(raw) {
		return io.NopCloser(bytes.NewReader(raw)), length
	}

	converted, err := decodeGB18030(raw)
	if err != nil || !utf8.Valid(converted) {
		return io.NopCloser(bytes.NewReader(raw)), length
	}
	return io.NopCloser(bytes.NewReader(converted)), int64(len(converted))
}

func decodeGB18030(raw []byte) ([]byte, error) {
	reader := transform.NewReader(bytes.NewReader(raw), simplifiedchinese.GB18030.NewDecoder())
	return io.ReadAll(reader)
}
