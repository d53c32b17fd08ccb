package chatsync

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// The backend is loose about ids: the same field may arrive as a JSON number
// or a string, and absent optional ids may be null. Everything below reads
// through gjson so ids always end up as decimal strings.

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func decodeMessage(r gjson.Result) (Message, error) {
	id := r.Get("id").String()
	if id == "" {
		return Message{}, fmt.Errorf("message without id: %s", truncate(r.Raw, 120))
	}
	m := Message{
		ID:          id,
		FromUserID:  r.Get("fromUserId").String(),
		ToUserID:    r.Get("toUserId").String(),
		GroupID:     r.Get("groupId").String(),
		MessageType: MessageKind(r.Get("messageType").String()),
		MessageText: r.Get("messageText").String(),
		SenderName:  r.Get("senderName").String(),
		IsRead:      true,
	}
	if m.MessageType == "" {
		m.MessageType = KindText
	}
	if m.GroupID != "" {
		m.ToUserID = ""
	}

	created := r.Get("createdAt").String()
	m.CreatedAt, _ = parseTime(created)
	if updated := r.Get("updatedAt").String(); updated != "" {
		if t, ok := parseTime(updated); ok {
			m.UpdatedAt = &t
			m.IsEdited = updated != created
		}
	}

	r.Get("files").ForEach(func(_, f gjson.Result) bool {
		content := f.Get("content").String()
		if content == "" {
			content = f.Get("base64").String()
		}
		m.Files = append(m.Files, FileAttachment{
			Name:    f.Get("name").String(),
			Size:    f.Get("size").Int(),
			Type:    f.Get("type").String(),
			Content: content,
			URL:     f.Get("url").String(),
		})
		return true
	})
	return m, nil
}

func decodeUser(r gjson.Result) (User, error) {
	id := r.Get("id").String()
	if id == "" {
		return User{}, fmt.Errorf("user without id: %s", truncate(r.Raw, 120))
	}
	return User{
		ID:          id,
		Name:        r.Get("name").String(),
		Username:    r.Get("username").String(),
		Email:       r.Get("email").String(),
		Role:        r.Get("role").String(),
		Avatar:      r.Get("avatar").String(),
		Online:      r.Get("online").Bool(),
		IsActive:    r.Get("isActive").Bool(),
		LastMessage: r.Get("lastMessage").String(),
		LastSeen:    r.Get("lastSeen").String(),
	}, nil
}

func decodeGroup(r gjson.Result) (Group, error) {
	id := r.Get("id").String()
	if id == "" {
		return Group{}, fmt.Errorf("group without id: %s", truncate(r.Raw, 120))
	}
	return Group{
		ID:          id,
		Name:        r.Get("name").String(),
		Description: r.Get("description").String(),
		MemberCount: int(r.Get("memberCount").Int()),
		IsMember:    r.Get("isMember").Bool(),
		CreatedBy:   r.Get("createdBy").String(),
		CreatedAt:   r.Get("createdAt").String(),
		Avatar:      r.Get("avatar").String(),
	}, nil
}

// decodePage decodes a list response. A status other than "success" is
// returned as an *APIError.
func decodePage[T any](data []byte, item func(gjson.Result) (T, error)) (*Page[T], error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("failed to unmarshal response: invalid JSON: %s", truncate(string(data), 120))
	}
	root := gjson.ParseBytes(data)
	status := root.Get("status").String()
	if status != "success" {
		msg := root.Get("message").String()
		if msg == "" {
			msg = "request was not successful"
		}
		code := status
		if code == "" {
			code = "UNKNOWN"
		}
		return nil, &APIError{Code: code, Message: msg}
	}

	page := &Page[T]{Status: status, Data: []T{}}
	var itemErr error
	root.Get("data").ForEach(func(_, r gjson.Result) bool {
		v, err := item(r)
		if err != nil {
			itemErr = err
			return false
		}
		page.Data = append(page.Data, v)
		return true
	})
	if itemErr != nil {
		return nil, itemErr
	}

	p := root.Get("pagination")
	page.Pagination = Pagination{
		CurrentPage:  int(p.Get("currentPage").Int()),
		TotalPages:   int(p.Get("totalPages").Int()),
		TotalRecords: int(p.Get("totalRecords").Int()),
	}
	if page.Pagination.TotalRecords == 0 {
		page.Pagination.TotalRecords = int(p.Get("total").Int())
	}
	return page, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
