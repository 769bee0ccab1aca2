package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

// Local mirrors of the stored records, so the inspector stays
// independent of the repositories package.
type diskUser struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Identity    string `json:"identity"`
	CreatedAt   int64  `json:"createdAt"`
}

type diskConversation struct {
	ID            string   `json:"id"`
	Participants  []string `json:"participants"`
	LastMessage   string   `json:"lastMessage,omitempty"`
	LastMessageAt int64    `json:"lastMessageAt,omitempty"`
	CreatedAt     int64    `json:"createdAt"`
}

type diskMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	Content        string `json:"content"`
	Type           string `json:"type"`
	At             int64  `json:"at"`
	Read           bool   `json:"read"`
}

func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	// Empty prefix scans the whole keyspace; pointer indexes are
	// skipped unless asked for explicitly.
	prefix := flag.String("prefix", "", "Prefix to scan (user:id:, conv:, member:, msg:, msgid:)")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Family", "Created", "Entity ID", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())

			// Pointer indexes carry no payload worth a row of their own.
			if *prefix == "" && isPointerIndex(key) {
				continue
			}

			err := item.Value(func(v []byte) error {
				table.Append(rowFor(key, v))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func isPointerIndex(key string) bool {
	return strings.HasPrefix(key, "user:ident:") ||
		strings.HasPrefix(key, "user:identlc:") ||
		strings.HasPrefix(key, "msgid:")
}

// rowFor decodes one record according to its key family. Unreadable
// values degrade to a RAW row instead of stopping the whole scan.
func rowFor(key string, value []byte) []string {
	switch {
	case strings.HasPrefix(key, "user:id:"):
		var u diskUser
		if err := json.Unmarshal(value, &u); err != nil {
			return rawRow(key, value, err)
		}
		detail := fmt.Sprintf("%s <%s>", u.DisplayName, u.Identity)
		return []string{key, "USER", time.Unix(u.CreatedAt, 0).UTC().Format(time.DateTime), shortID(u.ID), detail}

	case strings.HasPrefix(key, "conv:"):
		var c diskConversation
		if err := json.Unmarshal(value, &c); err != nil {
			return rawRow(key, value, err)
		}
		detail := strings.Join(c.Participants, ", ")
		if c.LastMessage != "" {
			detail += fmt.Sprintf("  last=%q at %s", preview(c.LastMessage),
				time.Unix(0, c.LastMessageAt).UTC().Format(time.TimeOnly))
		}
		return []string{key, "CONV", time.Unix(c.CreatedAt, 0).UTC().Format(time.DateTime), shortID(c.ID), detail}

	case strings.HasPrefix(key, "member:"):
		// member:{user}:{conversation} edges carry no value.
		parts := strings.SplitN(strings.TrimPrefix(key, "member:"), ":", 2)
		detail := ""
		if len(parts) == 2 {
			detail = fmt.Sprintf("%s -> %s", parts[0], parts[1])
		}
		return []string{key, "MEMBER", "", "", detail}

	case strings.HasPrefix(key, "msg:"):
		var m diskMessage
		if err := json.Unmarshal(value, &m); err != nil {
			return rawRow(key, value, err)
		}
		flag := " "
		if m.Read {
			flag = "r"
		}
		detail := fmt.Sprintf("[%s%s] %s: %s", m.Type, flag, m.SenderID, preview(m.Content))
		return []string{key, "MSG", time.Unix(0, m.At).UTC().Format(time.DateTime), shortID(m.ID), detail}

	default:
		// Pointer indexes reached via an explicit prefix.
		return []string{key, "INDEX", "", "", preview(string(value))}
	}
}

func rawRow(key string, value []byte, err error) []string {
	// Instead of stopping the whole scan, surface the decode failure.
	fmt.Printf("Error unmarshaling key %s: %v\n", key, err)
	return []string{key, "RAW", "", "", preview(string(value))}
}

// shortID keeps the first 8 characters for readability.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func preview(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 48 {
		return s[:48] + "..."
	}
	return s
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	db, err := badger.Open(opts)
	if err != nil {
		// A dirty shutdown leaves the value log needing a truncate,
		// which read-only mode refuses to do. Open once in write mode
		// to repair, then reopen read-only.
		if strings.Contains(err.Error(), "Log truncate required") {
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}

			db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
