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
	"strconv"
	"time"
)

func main() {
	addrFlag := flag.String("addr", "http://127.0.0.1:8080", "daemon base URL")
	jsonFlag := flag.Bool("json", false, "output raw JSON")
	pageFlag := flag.Int("page", 1, "page number for listings")
	limitFlag := flag.Int("limit", 20, "page size for listings")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c := &client{
		base:  *addrFlag,
		http:  &http.Client{Timeout: 10 * time.Second},
		page:  *pageFlag,
		limit: *limitFlag,
	}

	switch args[0] {
	case "send":
		if len(args) != 4 {
			fmt.Fprintln(os.Stderr, "usage: courierctl send <sender_id> <receiver_id> <content>")
			os.Exit(1)
		}
		cmdSend(c, args[1], args[2], args[3], *jsonFlag)
	case "conversation":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: courierctl conversation <id>")
			os.Exit(1)
		}
		cmdConversation(c, args[1], *jsonFlag)
	case "conversations":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: courierctl conversations <user_id>")
			os.Exit(1)
		}
		cmdConversations(c, args[1], *jsonFlag)
	case "messages":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: courierctl messages <conversation_id>")
			os.Exit(1)
		}
		cmdMessages(c, args[1], "", *jsonFlag)
	case "messages-before":
		if len(args) != 3 {
			fmt.Fprintln(os.Stderr, "usage: courierctl messages-before <conversation_id> <rfc3339-timestamp>")
			os.Exit(1)
		}
		cmdMessages(c, args[1], args[2], *jsonFlag)
	case "status":
		cmdStatus(c, *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: courierctl [--addr <url>] [--json] [--page N] [--limit N] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  send <sender> <receiver> <content>      Send a direct message")
	fmt.Fprintln(os.Stderr, "  conversation <id>                       Show one conversation")
	fmt.Fprintln(os.Stderr, "  conversations <user_id>                 List a user's conversations")
	fmt.Fprintln(os.Stderr, "  messages <conversation_id>              List a conversation's messages")
	fmt.Fprintln(os.Stderr, "  messages-before <conversation_id> <ts>  Messages older than a timestamp")
	fmt.Fprintln(os.Stderr, "  status                                  Show daemon health")
}

type client struct {
	base  string
	http  *http.Client
	page  int
	limit int
}

type message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	ReceiverID     int64     `json:"receiver_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

type conversation struct {
	ID                 int64      `json:"id"`
	User1ID            int64      `json:"user1_id"`
	User2ID            int64      `json:"user2_id"`
	LastMessageAt      *time.Time `json:"last_message_at"`
	LastMessageContent *string    `json:"last_message_content"`
}

type page[T any] struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Data  []T `json:"data"`
}

func (c *client) get(path string, query url.Values, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	resp, err := c.http.Get(u)
	if err != nil {
		return err
	}
	return decode(resp, out)
}

func (c *client) post(path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.base+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	return decode(resp, out)
}

func decode(resp *http.Response, out any) error {
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, e.Error)
		}
		return fmt.Errorf("%s", resp.Status)
	}
	return json.Unmarshal(raw, out)
}

func (c *client) pageQuery() url.Values {
	return url.Values{
		"page":  {strconv.Itoa(c.page)},
		"limit": {strconv.Itoa(c.limit)},
	}
}

func cmdSend(c *client, sender, receiver, content string, jsonOut bool) {
	senderID := parseID(sender, "sender_id")
	receiverID := parseID(receiver, "receiver_id")

	var msg message
	err := c.post("/api/messages", map[string]any{
		"sender_id":   senderID,
		"receiver_id": receiverID,
		"content":     content,
	}, &msg)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(msg)
		return
	}
	fmt.Printf("Message %d sent in conversation %d\n", msg.ID, msg.ConversationID)
}

func cmdConversation(c *client, id string, jsonOut bool) {
	var conv conversation
	if err := c.get("/api/conversations/"+strconv.FormatInt(parseID(id, "id"), 10), nil, &conv); err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(conv)
		return
	}
	printConversation(conv)
}

func cmdConversations(c *client, userID string, jsonOut bool) {
	var res page[conversation]
	path := "/api/conversations/user/" + strconv.FormatInt(parseID(userID, "user_id"), 10)
	if err := c.get(path, c.pageQuery(), &res); err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(res)
		return
	}
	fmt.Printf("%d conversation(s), page %d\n", res.Total, res.Page)
	for _, conv := range res.Data {
		printConversation(conv)
	}
}

func cmdMessages(c *client, conversationID, before string, jsonOut bool) {
	path := "/api/conversations/" + strconv.FormatInt(parseID(conversationID, "conversation_id"), 10) + "/messages"
	query := c.pageQuery()
	if before != "" {
		if _, err := time.Parse(time.RFC3339Nano, before); err != nil {
			fatal(fmt.Errorf("before must be an RFC 3339 timestamp: %v", err))
		}
		path += "/before"
		query.Set("before", before)
	}

	var res page[message]
	if err := c.get(path, query, &res); err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(res)
		return
	}
	fmt.Printf("%d message(s), page %d\n", res.Total, res.Page)
	for _, m := range res.Data {
		fmt.Printf("[%s] %d -> %d: %s\n", m.CreatedAt.Format(time.RFC3339), m.SenderID, m.ReceiverID, m.Content)
	}
}

func cmdStatus(c *client, jsonOut bool) {
	var res struct {
		Status string `json:"status"`
	}
	// /healthz returns 503 with a body when degraded; surface the body either way.
	resp, err := c.http.Get(c.base + "/healthz")
	if err != nil {
		fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(res)
		return
	}
	fmt.Printf("Status: %s\n", res.Status)
}

func printConversation(conv conversation) {
	fmt.Printf("Conversation %d (users %d, %d)\n", conv.ID, conv.User1ID, conv.User2ID)
	if conv.LastMessageAt != nil && conv.LastMessageContent != nil {
		fmt.Printf("  last: [%s] %s\n", conv.LastMessageAt.Format(time.RFC3339), *conv.LastMessageContent)
	}
}

func parseID(s, name string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 1 {
		fatal(fmt.Errorf("%s must be a positive integer", name))
	}
	return v
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
