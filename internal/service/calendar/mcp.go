package calendar

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/enrique/backend/internal/analysis/timezone"
	calendarModel "github.com/zhouzirui/enrique/backend/internal/model/calendar"
)

// ErrRPC is returned when the MCP server answers with a JSON-RPC error.
var ErrRPC = errors.New("mcp rpc error")

const (
	methodNavigate = "browser_navigate"
	methodSnapshot = "browser_snapshot"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// MCPOptions 配置 Playwright MCP 后端。
type MCPOptions struct {
	ServerURL    string
	CalendlyLink string
	Timeout      time.Duration
	Location     *time.Location
	HTTPClient   *http.Client
	Logger       *zap.Logger
	Now          func() time.Time
}

// MCPBackend drives a Playwright MCP server that renders the Calendly page.
type MCPBackend struct {
	endpoint string
	link     string
	loc      *time.Location
	client   *http.Client
	logger   *zap.Logger
	now      func() time.Time
	nextID   atomic.Int64
}

// NewMCPBackend creates a backend posting JSON-RPC calls to {ServerURL}/mcp.
func NewMCPBackend(opts MCPOptions) *MCPBackend {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &MCPBackend{
		endpoint: strings.TrimRight(opts.ServerURL, "/") + "/mcp",
		link:     opts.CalendlyLink,
		loc:      loc,
		client:   client,
		logger:   logger.Named("mcp"),
		now:      now,
	}
}

// Name implements Backend.
func (b *MCPBackend) Name() string { return "playwright_mcp" }

// CheckAvailability 打开指定日期的 Calendly 页面并从快照中解析时间标签。
func (b *MCPBackend) CheckAvailability(ctx context.Context, day time.Time) ([]calendarModel.TimeSlot, error) {
	day = midnight(day.In(b.loc))

	if _, err := b.call(ctx, methodNavigate, map[string]string{"url": b.pageURL(day.Format("2006-01-02"))}); err != nil {
		return nil, err
	}
	content, err := b.call(ctx, methodSnapshot, map[string]any{})
	if err != nil {
		return nil, err
	}

	slots := b.parseSlots(content, day)
	b.logger.Debug("snapshot parsed", zap.Int("contentLength", len(content)), zap.Int("slots", len(slots)))
	if len(slots) == 0 {
		return b.fallbackSlots(day), nil
	}
	return slots, nil
}

// CheckRange checks each day touched by [start, end).
func (b *MCPBackend) CheckRange(ctx context.Context, start, end time.Time) ([]calendarModel.TimeSlot, error) {
	if err := validateRange(start, end); err != nil {
		return nil, err
	}

	var all []calendarModel.TimeSlot
	for _, day := range daysBetween(start.In(b.loc), end.In(b.loc)) {
		slots, err := b.CheckAvailability(ctx, day)
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", day.Format("2006-01-02"), err)
		}
		all = append(all, slots...)
	}
	return withinRange(all, start, end), nil
}

// BookMeeting opens the slot's booking page. The attempt degrades to a pending
// confirmation when the MCP server fails.
func (b *MCPBackend) BookMeeting(ctx context.Context, req calendarModel.BookingRequest) (calendarModel.BookingConfirmation, error) {
	if err := validateBooking(req); err != nil {
		return calendarModel.BookingConfirmation{}, err
	}

	slot := req.Slot
	if slot.End.IsZero() {
		slot.End = slot.Start.Add(SlotLength)
	}
	bookingURL := slot.BookingURL
	if bookingURL == "" {
		bookingURL = b.pageURL(slot.Start.In(b.loc).Format("2006-01-02T15:04:05"))
	}

	pending := calendarModel.BookingConfirmation{
		Status:       calendarModel.StatusPending,
		Start:        slot.Start,
		End:          slot.End,
		InviteeEmail: req.Contact.Email,
	}

	if _, err := b.call(ctx, methodNavigate, map[string]string{"url": bookingURL}); err != nil {
		return pending, fmt.Errorf("open booking page: %w", err)
	}
	if _, err := b.call(ctx, methodSnapshot, map[string]any{}); err != nil {
		return pending, fmt.Errorf("snapshot booking page: %w", err)
	}

	confirmed := pending
	confirmed.Status = calendarModel.StatusBooked
	confirmed.MeetingLink = bookingURL
	confirmed.BookingID = NewBookingID(b.now().In(b.loc))
	return confirmed, nil
}

func (b *MCPBackend) pageURL(date string) string {
	u, err := url.Parse(b.link)
	if err != nil {
		return b.link + "?date=" + url.QueryEscape(date)
	}
	q := u.Query()
	q.Set("date", date)
	u.RawQuery = q.Encode()
	return u.String()
}

// call posts one JSON-RPC request and returns the text of result.content.
func (b *MCPBackend) call(ctx context.Context, method string, params any) (string, error) {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      b.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", fmt.Errorf("read %s response: %w", method, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%s: mcp server returned status %d", method, resp.StatusCode)
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		body = lastSSEData(body)
	}

	var decoded rpcResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode %s response: %w", method, err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("%w: %s: %d %s", ErrRPC, method, decoded.Error.Code, decoded.Error.Message)
	}
	return resultContent(decoded.Result), nil
}

// lastSSEData 取事件流中最后一个 data 负载。
func lastSSEData(body []byte) []byte {
	var last []byte
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), len(body)+1)
	for scanner.Scan() {
		line := scanner.Bytes()
		if rest, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			last = append(last[:0], bytes.TrimSpace(rest)...)
		}
	}
	return last
}

// resultContent accepts content as a plain string or as MCP text parts.
func resultContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var result struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(raw, &result); err != nil || len(result.Content) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(result.Content, &text); err == nil {
		return text
	}

	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(result.Content, &parts); err != nil {
		return ""
	}
	texts := make([]string, 0, len(parts))
	for _, part := range parts {
		if part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func (b *MCPBackend) parseSlots(content string, day time.Time) []calendarModel.TimeSlot {
	seen := make(map[int]struct{})
	var slots []calendarModel.TimeSlot
	for _, label := range timezone.FindAllTimeExpressions(content) {
		key := label.Hour*60 + label.Minute
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		slots = append(slots, b.slotAt(day, label.Hour, label.Minute, SlotLength))
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots
}

// fallbackSlots 页面没有可解析的时间时返回的默认时段。
func (b *MCPBackend) fallbackSlots(day time.Time) []calendarModel.TimeSlot {
	return []calendarModel.TimeSlot{
		b.slotAt(day, 14, 0, time.Hour),
		b.slotAt(day, 15, 30, time.Hour),
	}
}

func (b *MCPBackend) slotAt(day time.Time, hour, minute int, length time.Duration) calendarModel.TimeSlot {
	start := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, b.loc)
	return calendarModel.TimeSlot{
		Start:      start,
		End:        start.Add(length),
		BookingURL: b.pageURL(start.Format("2006-01-02T15:04:05")),
		EventType:  calendarModel.DefaultEventType,
	}
}
