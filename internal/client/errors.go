package client

import (
	"errors"
	"fmt"
)

// Failure messages shown to the user, one per upstream resource.
const (
	MsgFishStatistics    = "获取鱼类统计数据失败"
	MsgOnlineMarket      = "获取在线市场数据失败"
	MsgWeather           = "获取天气数据失败"
	MsgAirQuality        = "获取空气质量数据失败"
	MsgWaterQuality      = "获取水质数据失败"
	MsgWaterPeriods      = "获取水质时间段失败"
	MsgProvinces         = "获取省份数据失败"
	MsgBasins            = "获取流域数据失败"
	MsgWaterQualityStats = "获取水质统计数据失败"
	MsgUsers             = "获取用户数据失败"
	MsgGetUser           = "获取用户信息失败"
	MsgDeleteUser        = "删除失败，请稍后重试"
	MsgUpdateUser        = "修改失败，请稍后重试"
	MsgLogin             = "登录失败"
	MsgIdentify          = "上传失败"
	MsgPredict           = "预测失败"
	MsgVideo             = "视频加载失败"
)

// ErrMalformedResponse marks a body that could not be decoded into the expected shape.
var ErrMalformedResponse = errors.New("malformed response body")

// Error is returned by every Client call that fails. Its message is the
// resource-level text only; the cause stays reachable for logs.
type Error struct {
	// Message is the user-facing resource failure text.
	Message string
	// Status is the HTTP status when a response arrived, 0 otherwise.
	Status int
	// Body is the raw response body of a non-2xx reply, truncated.
	Body string
	// ServerMessage is the upstream "message"/"error" field when present.
	ServerMessage string
	Err           error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Detail describes what actually went wrong, for logs and debug panels.
func (e *Error) Detail() string {
	switch {
	case e.Status != 0 && e.Body != "":
		return fmt.Sprintf("status %d: %s", e.Status, e.Body)
	case e.Status != 0:
		return fmt.Sprintf("status %d", e.Status)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Message
	}
}

// StatusCode exposes the HTTP status of the failed call.
func (e *Error) StatusCode() int {
	return e.Status
}

// ResponseBody exposes the raw body of the failed call.
func (e *Error) ResponseBody() string {
	return e.Body
}
