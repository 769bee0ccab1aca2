package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mama165/sdk-go/database"
)

// inspectMapper renders relay records in the badger debug inspector.
// Pointer index entries hold a target key as their value, so the raw
// value is already readable.
func inspectMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)

	switch {
	case strings.HasPrefix(key, "user:ident:"),
		strings.HasPrefix(key, "user:identlc:"),
		strings.HasPrefix(key, "msgid:"):
		row.Type = "INDEX"
		row.Detail = string(val)
	case strings.HasPrefix(key, "user:"):
		row.Type = "USER"
		var u struct {
			DisplayName string `json:"displayName"`
			Identity    string `json:"identity"`
		}
		if err := json.Unmarshal(val, &u); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Detail = fmt.Sprintf("%s <%s>", u.DisplayName, u.Identity)
	case strings.HasPrefix(key, "conv:"):
		row.Type = "CONV"
		var c struct {
			Participants []string `json:"participants"`
			LastMessage  string   `json:"lastMessage"`
		}
		if err := json.Unmarshal(val, &c); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Detail = fmt.Sprintf("%s last=%q", strings.Join(c.Participants, ", "), c.LastMessage)
	case strings.HasPrefix(key, "member:"):
		row.Type = "MEMBER"
		row.Detail = strings.Replace(strings.TrimPrefix(key, "member:"), ":", " -> ", 1)
	case strings.HasPrefix(key, "msg:"):
		row.Type = "MSG"
		var m struct {
			SenderID string `json:"senderId"`
			Content  string `json:"content"`
			Read     bool   `json:"read"`
		}
		if err := json.Unmarshal(val, &m); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		flag := ""
		if m.Read {
			flag = " [read]"
		}
		row.Detail = fmt.Sprintf("%s: %s%s", m.SenderID, m.Content, flag)
	}
	return row
}
