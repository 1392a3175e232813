package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/Taiters/coup-clone/internal/api"
	"github.com/Taiters/coup-clone/internal/coup"
	"github.com/Taiters/coup-clone/internal/game"
	"github.com/Taiters/coup-clone/internal/service"
	ws "github.com/Taiters/coup-clone/internal/websocket"
	"github.com/gorilla/websocket"
)

// APITestClient 对运行中的服务器做冒烟测试：两名玩家建局、入座、开局并行动一回合
type APITestClient struct {
	BaseURL    string
	HTTPClient *http.Client

	host   *service.SessionGrant
	guest  *service.SessionGrant
	gameID string
	conn   *websocket.Conn
}

// NewAPITestClient 创建测试客户端
func NewAPITestClient(baseURL string) *APITestClient {
	return &APITestClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// call 发送请求，非 2xx 时返回响应体中的错误
func (c *APITestClient) call(method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("JSON编码失败: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求失败: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %v", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("解析响应失败: %v", err)
	}
	return nil
}

// TestHealthCheck 测试健康检查
func (c *APITestClient) TestHealthCheck() error {
	var response map[string]interface{}
	if err := c.call(http.MethodGet, "/health", "", nil, &response); err != nil {
		return err
	}
	fmt.Printf("   服务器健康状态: %v\n", response["status"])
	fmt.Printf("   依赖检查: %v\n", response["checks"])
	return nil
}

// TestCreateSessions 为房主和访客各创建一个会话
func (c *APITestClient) TestCreateSessions() error {
	c.host, c.guest = &service.SessionGrant{}, &service.SessionGrant{}
	if err := c.call(http.MethodPost, "/api/v1/sessions", "", nil, c.host); err != nil {
		return err
	}
	if err := c.call(http.MethodPost, "/api/v1/sessions", "", nil, c.guest); err != nil {
		return err
	}
	fmt.Printf("   房主会话: %s\n", c.host.SessionID)
	fmt.Printf("   访客会话: %s\n", c.guest.SessionID)
	return nil
}

// TestResumeSession 用恢复密钥重新签发令牌
func (c *APITestClient) TestResumeSession() error {
	var grant service.SessionGrant
	req := &service.ResumeRequest{SessionID: c.guest.SessionID, Secret: c.guest.Secret}
	if err := c.call(http.MethodPost, "/api/v1/sessions/resume", "", req, &grant); err != nil {
		return err
	}
	c.guest.Token = grant.Token
	fmt.Printf("   新令牌有效期至: %s\n", grant.ExpiresAt.Format(time.RFC3339))
	return nil
}

// TestCreateGame 房主建局
func (c *APITestClient) TestCreateGame() error {
	var resp api.IntentResponse
	if err := c.call(http.MethodPost, "/api/v1/games", c.host.Token, &api.NameRequest{Name: "host"}, &resp); err != nil {
		return err
	}
	c.gameID = resp.GameID
	fmt.Printf("   对局ID: %s\n", c.gameID)
	fmt.Printf("   加入二维码: %s/api/v1/games/%s/qrcode\n", c.BaseURL, c.gameID)
	return nil
}

// TestWebSocket 访客先建立连接，入座后应收到推送
func (c *APITestClient) TestWebSocket() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return err
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/ws"
	u.RawQuery = url.Values{"token": {c.guest.Token}}.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("WebSocket连接失败: %v", err)
	}
	c.conn = conn
	return c.expect(ws.MessageTypeConnected)
}

// TestJoinGame 访客通过HTTP入座
func (c *APITestClient) TestJoinGame() error {
	var resp api.IntentResponse
	if err := c.call(http.MethodPost, "/api/v1/games/"+c.gameID+"/join", c.guest.Token, &api.NameRequest{Name: "guest"}, &resp); err != nil {
		return err
	}
	fmt.Printf("   访客玩家ID: %d\n", resp.PlayerID)
	return c.expect(ws.MessageTypeHand)
}

// TestStartAndPlay 房主开局，当前行动者拿一枚收入
func (c *APITestClient) TestStartAndPlay() error {
	var started api.IntentResponse
	if err := c.call(http.MethodPost, "/api/v1/intents", c.host.Token, &game.Intent{Kind: game.IntentStartGame}, &started); err != nil {
		return err
	}

	actor := c.host.Token
	if started.Game.Turn.PlayerID != started.PlayerID {
		actor = c.guest.Token
	}
	income := &game.Intent{Kind: game.IntentTakeAction, Action: coup.ActionIncome}
	if err := c.call(http.MethodPost, "/api/v1/intents", actor, income, nil); err != nil {
		return err
	}

	var events []coup.Event
	if err := c.call(http.MethodGet, "/api/v1/games/"+c.gameID+"/events", "", nil, &events); err != nil {
		return err
	}
	for _, e := range events {
		fmt.Printf("   📜 %s\n", e.Message)
	}
	return nil
}

// TestSummary 公开视图
func (c *APITestClient) TestSummary() error {
	var view coup.GameView
	if err := c.call(http.MethodGet, "/api/v1/games/"+c.gameID+"/summary", "", nil, &view); err != nil {
		return err
	}
	for _, p := range view.Players {
		fmt.Printf("   %s: %d coins\n", p.Name, p.Coins)
	}
	return nil
}

// TestLeave 双方离开，最后一人离开时对局被删除
func (c *APITestClient) TestLeave() error {
	leave := &game.Intent{Kind: game.IntentLeaveGame}
	if err := c.call(http.MethodPost, "/api/v1/intents", c.guest.Token, leave, nil); err != nil {
		return err
	}
	var resp api.IntentResponse
	if err := c.call(http.MethodPost, "/api/v1/intents", c.host.Token, leave, &resp); err != nil {
		return err
	}
	if !resp.Deleted {
		return fmt.Errorf("最后一名玩家离开后对局未删除")
	}
	return nil
}

// expect 读取推送直到出现指定类型
func (c *APITestClient) expect(msgType string) error {
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg ws.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("等待 %s 消息失败: %v", msgType, err)
		}
		fmt.Printf("   📨 收到消息 [%s]\n", msg.Type)
		if msg.Type == ws.MessageTypeError {
			return fmt.Errorf("服务端拒绝: %s", string(msg.Data))
		}
		if msg.Type == msgType {
			return nil
		}
	}
}

// RunAllTests 按顺序运行，任一步失败即停止
func (c *APITestClient) RunAllTests() bool {
	fmt.Printf("🎯 目标服务器: %s\n", c.BaseURL)
	fmt.Println(strings.Repeat("=", 60))
	defer func() {
		if c.conn != nil {
			c.conn.Close()
		}
	}()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"健康检查", c.TestHealthCheck},
		{"创建会话", c.TestCreateSessions},
		{"恢复会话", c.TestResumeSession},
		{"创建对局", c.TestCreateGame},
		{"WebSocket连接", c.TestWebSocket},
		{"加入对局", c.TestJoinGame},
		{"开局并行动", c.TestStartAndPlay},
		{"公开视图", c.TestSummary},
		{"离开对局", c.TestLeave},
	}

	for i, test := range tests {
		fmt.Printf("\n▶ %s\n", test.name)
		if err := test.fn(); err != nil {
			fmt.Printf("❌ %s失败: %v\n", test.name, err)
			fmt.Printf("📊 测试结果: %d/%d 通过\n", i, len(tests))
			return false
		}
		fmt.Printf("✅ %s成功\n", test.name)
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("🎉 所有API测试通过 (%d/%d)\n", len(tests), len(tests))
	return true
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "服务器地址")
	flag.Parse()

	fmt.Println("🃏 Coup API 冒烟测试客户端")
	if !NewAPITestClient(*baseURL).RunAllTests() {
		os.Exit(1)
	}
}
