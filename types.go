package chatsync

import (
	"fmt"
	"strings"
	"time"
)

// ============================================================================
// Shared Types
// ============================================================================

// APIError represents an error reported by the chat backend.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// ChatType distinguishes direct chats from group chats.
type ChatType string

const (
	ChatDirect ChatType = "user"
	ChatGroup  ChatType = "group"
)

// ChatRef identifies a conversation: a peer user for direct chats, a group
// otherwise.
type ChatRef struct {
	Type ChatType `json:"type"`
	ID   string   `json:"id"`
}

// Direct returns a reference to the direct chat with userID.
func Direct(userID string) ChatRef { return ChatRef{Type: ChatDirect, ID: userID} }

// GroupChat returns a reference to the group chat groupID.
func GroupChat(groupID string) ChatRef { return ChatRef{Type: ChatGroup, ID: groupID} }

// Valid reports whether the reference names a chat.
func (r ChatRef) Valid() bool {
	return r.ID != "" && (r.Type == ChatDirect || r.Type == ChatGroup)
}

func (r ChatRef) String() string {
	return string(r.Type) + ":" + r.ID
}

// Identity is the local user.
type Identity struct {
	UserID string `json:"id"`
	Name   string `json:"name"`
}

// ============================================================================
// Messages
// ============================================================================

// MessageKind is the wire value of a message's type.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindDoc   MessageKind = "doc"
	KindImage MessageKind = "image"
)

// FileAttachment is a file carried inline by a message.
type FileAttachment struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
	// Content is the base64 payload.
	Content string `json:"content,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Message is one chat message. Before acknowledgment ID equals TempID.
type Message struct {
	ID          string           `json:"id"`
	TempID      string           `json:"tempId,omitempty"`
	FromUserID  string           `json:"fromUserId"`
	ToUserID    string           `json:"toUserId,omitempty"`
	GroupID     string           `json:"groupId,omitempty"`
	MessageType MessageKind      `json:"messageType"`
	MessageText string           `json:"messageText,omitempty"`
	Files       []FileAttachment `json:"files,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   *time.Time       `json:"updatedAt,omitempty"`
	IsEdited    bool             `json:"isEdited,omitempty"`
	IsRead      bool             `json:"isRead,omitempty"`
	IsSending   bool             `json:"isSending,omitempty"`
	SenderName  string           `json:"senderName,omitempty"`
}

// Validate checks that the message has a body or attachments but not both.
func (m *Message) Validate() error {
	hasText := strings.TrimSpace(m.MessageText) != ""
	hasFiles := len(m.Files) > 0
	switch {
	case hasText && hasFiles:
		return ErrMixedContent
	case !hasText && !hasFiles:
		return ErrEmptyMessage
	}
	if m.ToUserID != "" && m.GroupID != "" {
		return fmt.Errorf("message %s has both a recipient and a group", m.ID)
	}
	return nil
}

// BelongsTo reports whether the message is part of the chat ref as seen by
// the local user selfID.
func (m *Message) BelongsTo(ref ChatRef, selfID string) bool {
	switch ref.Type {
	case ChatGroup:
		return m.GroupID != "" && m.GroupID == ref.ID
	case ChatDirect:
		if m.GroupID != "" {
			return false
		}
		return (m.FromUserID == selfID && m.ToUserID == ref.ID) ||
			(m.FromUserID == ref.ID && m.ToUserID == selfID)
	}
	return false
}

// Key returns the message's store key.
func (m Message) Key() string { return m.ID }

// ============================================================================
// Directory Types
// ============================================================================

type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Username    string `json:"username,omitempty"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	Online      bool   `json:"online"`
	IsActive    bool   `json:"isActive,omitempty"`
	LastMessage string `json:"lastMessage,omitempty"`
	LastSeen    string `json:"lastSeen,omitempty"`
}

func (u User) Key() string { return u.ID }

type Group struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MemberCount int    `json:"memberCount,omitempty"`
	IsMember    bool   `json:"isMember,omitempty"`
	CreatedBy   string `json:"createdBy,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

func (g Group) Key() string { return g.ID }

// UserView selects which users the backend returns.
type UserView int

const (
	// ViewAll lists every user.
	ViewAll UserView = 0
	// ViewChatted lists users the local user has talked to.
	ViewChatted UserView = 1
)

// ============================================================================
// Presence
// ============================================================================

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

// PresenceEntry is one user's presence as last broadcast.
type PresenceEntry struct {
	UserID   string         `json:"userId"`
	Status   PresenceStatus `json:"status"`
	LastSeen time.Time      `json:"lastSeen"`
}

// ============================================================================
// REST Types
// ============================================================================

// Pagination is the paging block of a list response.
type Pagination struct {
	CurrentPage  int `json:"currentPage"`
	TotalPages   int `json:"totalPages"`
	TotalRecords int `json:"totalRecords"`
}

// Page is one page of a list response.
type Page[T any] struct {
	Status     string     `json:"status"`
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

type UserQuery struct {
	Page     int
	PageSize int
	Search   string
	View     UserView
}

type GroupQuery struct {
	Page   int
	Limit  int
	Search string
}

// MessageQuery selects one page of a conversation's history. Set GroupID for
// group chats, FromUserID and ToUserID for direct chats.
type MessageQuery struct {
	Page       int
	Limit      int
	GroupID    string
	FromUserID string
	ToUserID   string
	Search     string
}
