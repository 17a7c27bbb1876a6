// Package client wraps the Ocean Monitor REST API. Each method issues exactly
// one request, without retry or caching, and folds every failure into *Error.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/oceanmonitor/dashboard/internal/model/ocean"
	"github.com/oceanmonitor/dashboard/internal/model/user"
)

// maxErrorBody bounds how much of a failed response is kept for diagnostics.
const maxErrorBody = 4 << 10

// Client talks to the upstream Ocean Monitor server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// New creates a client rooted at baseURL, e.g. "http://localhost:5000/api".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the upstream root this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FishStatistics 获取鱼类统计数据。
func (c *Client) FishStatistics(ctx context.Context) (*ocean.Envelope[ocean.FishStatistics], error) {
	var out ocean.Envelope[ocean.FishStatistics]
	if err := c.getJSON(ctx, MsgFishStatistics, "/fish-statistics", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OnlineMarket 获取在线市场数据。
func (c *Client) OnlineMarket(ctx context.Context) (*ocean.Envelope[ocean.MarketData], error) {
	var out ocean.Envelope[ocean.MarketData]
	if err := c.getJSON(ctx, MsgOnlineMarket, "/online-market", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Weather 获取天气数据。
func (c *Client) Weather(ctx context.Context) (*ocean.Envelope[ocean.Forecast], error) {
	var out ocean.Envelope[ocean.Forecast]
	if err := c.getJSON(ctx, MsgWeather, "/weather", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AirQuality 获取空气质量数据。
func (c *Client) AirQuality(ctx context.Context) (*ocean.Envelope[ocean.Forecast], error) {
	var out ocean.Envelope[ocean.Forecast]
	if err := c.getJSON(ctx, MsgAirQuality, "/air-quality", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WaterQuality 获取水质监测数据。province 与 basin 为空时不加入查询。
func (c *Client) WaterQuality(ctx context.Context, filter ocean.WaterQualityFilter) (*ocean.Envelope[[]ocean.WaterQualityRecord], error) {
	query := url.Values{}
	query.Set("year", filter.Year)
	query.Set("month", filter.Month)
	setIfPresent(query, "province", filter.Province)
	setIfPresent(query, "basin", filter.Basin)

	var out ocean.Envelope[[]ocean.WaterQualityRecord]
	if err := c.getJSON(ctx, MsgWaterQuality, "/water-quality", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WaterQualityPeriods 获取水质监测可用时间段。
func (c *Client) WaterQualityPeriods(ctx context.Context) (*ocean.Envelope[[]ocean.Period], error) {
	var out ocean.Envelope[[]ocean.Period]
	if err := c.getJSON(ctx, MsgWaterPeriods, "/water-quality/periods", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Provinces 获取所有省份。
func (c *Client) Provinces(ctx context.Context) (*ocean.Envelope[[]string], error) {
	var out ocean.Envelope[[]string]
	if err := c.getJSON(ctx, MsgProvinces, "/water-quality/provinces", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Basins 获取流域，可按省份过滤。
func (c *Client) Basins(ctx context.Context, province string) (*ocean.Envelope[[]string], error) {
	query := url.Values{}
	setIfPresent(query, "province", province)

	var out ocean.Envelope[[]string]
	if err := c.getJSON(ctx, MsgBasins, "/water-quality/basins", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WaterQualityStats 获取水质统计数据。
func (c *Client) WaterQualityStats(ctx context.Context, year, month string) (*ocean.Envelope[ocean.WaterQualityStats], error) {
	query := url.Values{}
	query.Set("year", year)
	query.Set("month", month)

	var out ocean.Envelope[ocean.WaterQualityStats]
	if err := c.getJSON(ctx, MsgWaterQualityStats, "/water-quality/statistics", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Users 获取用户列表。A data field that is not an array fails with
// ErrMalformedResponse; a missing or null one decodes to a nil slice.
func (c *Client) Users(ctx context.Context) (*ocean.Envelope[[]user.User], error) {
	var out ocean.Envelope[[]user.User]
	if err := c.getJSON(ctx, MsgUsers, "/users", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UserReply is the upstream shape of login, get-user and update replies.
type UserReply struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Error   string     `json:"error,omitempty"`
	User    *user.User `json:"user,omitempty"`
}

// GetUser 获取单个用户，用于编辑页面。
func (c *Client) GetUser(ctx context.Context, username string) (*UserReply, error) {
	var out UserReply
	if err := c.getJSON(ctx, MsgGetUser, "/get_user/"+url.PathEscape(username), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MessageReply is the upstream shape of the delete reply.
type MessageReply struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// DeleteUser 删除用户。The acting user's identity travels in the body; the
// upstream decides whether it is allowed.
func (c *Client) DeleteUser(ctx context.Context, username string, operator user.CurrentUser) (*MessageReply, error) {
	payload := map[string]string{
		"username": operator.Username,
		"role":     operator.Role,
	}

	var out MessageReply
	if err := c.sendJSON(ctx, MsgDeleteUser, http.MethodDelete, "/users/"+url.PathEscape(username), payload, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateUser 修改用户信息，operatorRole 随请求发送供后端校验。
func (c *Client) UpdateUser(ctx context.Context, username string, changes user.Update, operatorRole string) (*UserReply, error) {
	payload := struct {
		user.Update
		OperatorRole string `json:"operator_role"`
	}{Update: changes, OperatorRole: operatorRole}

	var out UserReply
	if err := c.sendJSON(ctx, MsgUpdateUser, http.MethodPut, "/users/"+url.PathEscape(username), payload, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login 校验用户名密码并返回用户信息。
func (c *Client) Login(ctx context.Context, username, password string) (*UserReply, error) {
	payload := map[string]string{
		"username": username,
		"password": password,
	}

	var out UserReply
	if err := c.sendJSON(ctx, MsgLogin, http.MethodPost, "/login", payload, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Upload is an image selected for classification.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// IdentifyMarineLife 上传图片进行海洋生物识别。The envelope is decoded
// whatever the status, since the upstream reports refusals as success=false.
func (c *Client) IdentifyMarineLife(ctx context.Context, file Upload) (*ocean.Envelope[ocean.Identification], error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(file.Name)))
	header.Set("Content-Type", file.ContentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, &Error{Message: MsgIdentify, Err: err}
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, &Error{Message: MsgIdentify, Err: err}
	}
	if err := writer.Close(); err != nil {
		return nil, &Error{Message: MsgIdentify, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/identify-marine-life", nil), body)
	if err != nil {
		return nil, &Error{Message: MsgIdentify, Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var out ocean.Envelope[ocean.Identification]
	if err := c.do(req, MsgIdentify, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// PredictLength 根据三个周期的体长预测第四个周期。
func (c *Client) PredictLength(ctx context.Context, periods [3]float64) (*ocean.Envelope[ocean.Prediction], error) {
	payload := map[string][]float64{"periods": periods[:]}

	var out ocean.Envelope[ocean.Prediction]
	if err := c.sendJSON(ctx, MsgPredict, http.MethodPost, "/predict-length", payload, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// VideoURL returns the address a playback element can stream directly.
func (c *Client) VideoURL(name string) string {
	return c.endpoint("/video/"+url.PathEscape(name), nil)
}

// OpenVideo starts streaming a video. rangeHeader is forwarded as-is when set.
// The caller owns the response body.
func (c *Client) OpenVideo(ctx context.Context, name, rangeHeader string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.VideoURL(name), nil)
	if err != nil {
		return nil, &Error{Message: MsgVideo, Err: err}
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(req, &Error{Message: MsgVideo, Err: err})
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		defer resp.Body.Close()
		return nil, c.fail(req, statusError(MsgVideo, resp))
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, msg, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return &Error{Message: msg, Err: err}
	}
	return c.do(req, msg, out, true)
}

func (c *Client) sendJSON(ctx context.Context, msg, method, path string, payload, out any, strict bool) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return &Error{Message: msg, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, nil), bytes.NewReader(data))
	if err != nil {
		return &Error{Message: msg, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, msg, out, strict)
}

// do executes req and decodes the JSON body into out. With strict set, any
// non-2xx status is a failure; otherwise the body is decoded regardless.
func (c *Client) do(req *http.Request, msg string, out any, strict bool) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.fail(req, &Error{Message: msg, Err: err})
	}
	defer resp.Body.Close()

	if strict && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return c.fail(req, statusError(msg, resp))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return c.fail(req, &Error{
			Message: msg,
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("%w: %v", ErrMalformedResponse, err),
		})
	}
	return nil
}

func (c *Client) fail(req *http.Request, err *Error) *Error {
	log.Printf("[client] %s %s failed: %s", req.Method, req.URL.Path, err.Detail())
	return err
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// statusError reads a bounded body and pulls out the upstream message.
func statusError(msg string, resp *http.Response) *Error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	e := &Error{
		Message: msg,
		Status:  resp.StatusCode,
		Body:    string(raw),
		Err:     fmt.Errorf("unexpected status %s", resp.Status),
	}

	var reply struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &reply) == nil {
		if reply.Message != "" {
			e.ServerMessage = reply.Message
		} else {
			e.ServerMessage = reply.Error
		}
	}
	return e
}

func setIfPresent(query url.Values, key, value string) {
	if value != "" {
		query.Set(key, value)
	}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
