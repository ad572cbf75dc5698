// Package matrix lets Matrix rooms talk to the router through mautrix-go.
package matrix

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/nous-labs/switchboard/internal/channel"
)

const (
	maxMessageLen = 4000
	syncRetry     = 15 * time.Second
)

// Config holds Matrix channel configuration.
type Config struct {
	Homeserver   string
	UserID       string // localpart, e.g. "switchboard"
	Password     string
	ServerName   string // e.g. "matrix.example.com"
	AllowedUsers []string
	DataDir      string // where login credentials are cached
}

// Channel implements channel.Channel for Matrix.
type Channel struct {
	config    Config
	credFile  string
	startTime int64

	mu      sync.Mutex
	client  *mautrix.Client
	handler channel.MessageHandler
}

type credentials struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	DeviceID    string `json:"device_id"`
}

// New creates a Matrix channel. Nothing connects until Start.
func New(cfg Config) *Channel {
	return &Channel{
		config:   cfg,
		credFile: filepath.Join(cfg.DataDir, "matrix_credentials.json"),
	}
}

func (c *Channel) Name() string { return "matrix" }

// FullUserID returns the bot's MXID.
func (c *Channel) FullUserID() id.UserID {
	if strings.HasPrefix(c.config.UserID, "@") {
		return id.UserID(c.config.UserID)
	}
	return id.UserID(fmt.Sprintf("@%s:%s", c.config.UserID, c.config.ServerName))
}

// Start logs in, then syncs until ctx is cancelled, reconnecting on sync errors.
func (c *Channel) Start(ctx context.Context, handler channel.MessageHandler) error {
	c.startTime = time.Now().UnixMilli()
	if err := os.MkdirAll(c.config.DataDir, 0o700); err != nil {
		return fmt.Errorf("create matrix data dir: %w", err)
	}

	client, err := mautrix.NewClient(c.config.Homeserver, c.FullUserID(), "")
	if err != nil {
		return fmt.Errorf("create matrix client: %w", err)
	}
	client.Store = mautrix.NewMemorySyncStore()

	c.mu.Lock()
	c.client = client
	c.handler = handler
	c.mu.Unlock()

	if err := c.loginWithRetry(ctx); err != nil {
		return err
	}

	syncer := client.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, c.onMessage)
	syncer.OnEventType(event.StateMember, c.onMemberEvent)

	slog.Info("matrix channel ready, starting sync", "user", client.UserID)
	for {
		err := client.SyncWithContext(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			slog.Warn("matrix sync error, reconnecting", "error", err, "in", syncRetry)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(syncRetry):
		}
	}
}

// loginWithRetry tries cached credentials, then password login with
// exponential backoff. Auth rejections are not retried.
func (c *Channel) loginWithRetry(ctx context.Context) error {
	if err := c.loadCredentials(); err == nil {
		slog.Info("loaded saved matrix credentials", "user", c.client.UserID)
		return nil
	}

	const maxAttempts = 10
	backoff, maxBackoff := 2*time.Second, 2*time.Minute

	for attempt := 1; ; attempt++ {
		slog.Info("logging into matrix", "homeserver", c.config.Homeserver, "attempt", attempt)
		resp, err := c.client.Login(ctx, &mautrix.ReqLogin{
			Type: mautrix.AuthTypePassword,
			Identifier: mautrix.UserIdentifier{
				Type: mautrix.IdentifierTypeUser,
				User: c.config.UserID,
			},
			Password:         c.config.Password,
			StoreCredentials: true,
		})
		if err == nil {
			slog.Info("logged into matrix", "user", resp.UserID, "device", resp.DeviceID)
			c.saveCredentials(credentials{
				AccessToken: resp.AccessToken,
				UserID:      string(resp.UserID),
				DeviceID:    string(resp.DeviceID),
			})
			return nil
		}
		if !retryableLogin(err) {
			return fmt.Errorf("matrix login: %w (non-retryable)", err)
		}
		if attempt == maxAttempts {
			return fmt.Errorf("matrix login: %w (after %d attempts)", err, maxAttempts)
		}

		slog.Warn("matrix login failed, retrying", "error", err, "attempt", attempt, "backoff", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func retryableLogin(err error) bool {
	s := err.Error()
	for _, code := range []string{"M_FORBIDDEN", "M_UNKNOWN_TOKEN", "M_INVALID_PARAM", "M_USER_DEACTIVATED"} {
		if strings.Contains(s, code) {
			return false
		}
	}
	return true
}

// Send posts a reply, splitting it into numbered chunks when it is long.
func (c *Channel) Send(ctx context.Context, resp channel.Response) error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return fmt.Errorf("matrix channel not started")
	}

	roomID := id.RoomID(resp.RoomID)
	chunks := splitMessage(resp.Content, maxMessageLen)
	for i, chunk := range chunks {
		if len(chunks) > 1 {
			chunk = fmt.Sprintf("[%d/%d] %s", i+1, len(chunks), chunk)
		}
		if _, err := client.SendText(ctx, roomID, chunk); err != nil {
			slog.Error("matrix send failed", "room", roomID, "chunk", i+1, "error", err)
			return fmt.Errorf("send to %s: %w", roomID, err)
		}
		if i < len(chunks)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
		}
	}
	slog.Info("matrix message sent", "room", roomID, "chunks", len(chunks), "len", len(resp.Content))
	return nil
}

func (c *Channel) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		c.client.StopSync()
	}
	return nil
}

func (c *Channel) onMessage(ctx context.Context, evt *event.Event) {
	if evt.Sender == c.client.UserID || evt.Timestamp < c.startTime || !c.isAllowed(evt.Sender) {
		return
	}
	content := evt.Content.AsMessage()
	if content == nil || strings.TrimSpace(content.Body) == "" {
		return
	}

	slog.Info("matrix message received", "sender", evt.Sender, "room", evt.RoomID, "content", truncate(content.Body, 100))

	reply, err := c.handler(ctx, channel.Message{
		Source:    "matrix",
		SenderID:  string(evt.Sender),
		RoomID:    string(evt.RoomID),
		Content:   content.Body,
		Timestamp: evt.Timestamp,
	})
	if err != nil {
		slog.Error("message handler error", "error", err)
		reply = fmt.Sprintf("*(Error: %s)*", err)
	}
	if reply == "" {
		return
	}
	if err := c.Send(ctx, channel.Response{RoomID: string(evt.RoomID), Content: reply}); err != nil {
		slog.Error("failed to send reply", "room", evt.RoomID, "error", err)
	}
}

// onMemberEvent auto-joins rooms the bot is invited to by allowed users.
func (c *Channel) onMemberEvent(ctx context.Context, evt *event.Event) {
	if evt.GetStateKey() != string(c.client.UserID) {
		return
	}
	member := evt.Content.AsMember()
	if member == nil || member.Membership != event.MembershipInvite {
		return
	}
	if !c.isAllowed(evt.Sender) {
		slog.Warn("rejecting invite from unauthorized user", "sender", evt.Sender)
		return
	}

	slog.Info("accepting room invite", "room", evt.RoomID, "from", evt.Sender)
	if _, err := c.client.JoinRoomByID(ctx, evt.RoomID); err != nil {
		slog.Error("failed to join room", "room", evt.RoomID, "error", err)
	}
}

func (c *Channel) loadCredentials() error {
	data, err := os.ReadFile(c.credFile)
	if err != nil {
		return err
	}
	var creds credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return err
	}
	if creds.AccessToken == "" {
		return fmt.Errorf("no access token in %s", c.credFile)
	}
	c.client.AccessToken = creds.AccessToken
	c.client.UserID = id.UserID(creds.UserID)
	c.client.DeviceID = id.DeviceID(creds.DeviceID)
	return nil
}

func (c *Channel) saveCredentials(creds credentials) {
	data, _ := json.MarshalIndent(creds, "", "  ")
	if err := os.WriteFile(c.credFile, data, 0o600); err != nil {
		slog.Warn("could not cache matrix credentials", "path", c.credFile, "error", err)
	}
}

// isAllowed reports whether sender may talk to the bot. An empty allow
// list admits everyone.
func (c *Channel) isAllowed(sender id.UserID) bool {
	restricted := false
	for _, u := range c.config.AllowedUsers {
		if u == "" {
			continue
		}
		if string(sender) == u {
			return true
		}
		restricted = true
	}
	return !restricted
}

// splitMessage breaks s into chunks of at most maxLen bytes, preferring
// newline boundaries and never splitting a UTF-8 sequence.
func splitMessage(s string, maxLen int) []string {
	var chunks []string
	for len(s) > maxLen {
		cut := strings.LastIndexByte(s[:maxLen], '\n')
		if cut <= 0 {
			cut = maxLen
			for cut > 0 && !utf8.RuneStart(s[cut]) {
				cut--
			}
		}
		chunks = append(chunks, s[:cut])
		s = strings.TrimPrefix(s[cut:], "\n")
	}
	if s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
