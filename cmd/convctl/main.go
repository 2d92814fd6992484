package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dmelo/convd/internal/config"
)

func main() {
	addrFlag := flag.String("addr", config.DefaultListen, "daemon listen address")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	queryFlag := flag.String("q", "", "filter conversations by display name")
	unreadFlag := flag.Bool("unread", false, "only unread conversations")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c := &client{
		base: "http://" + *addrFlag,
		http: &http.Client{Timeout: 10 * time.Second},
	}

	switch args[0] {
	case "list":
		cmdList(c, *jsonFlag, *queryFlag, *unreadFlag)
	case "archived":
		cmdArchived(c, *jsonFlag, *queryFlag)
	case "archive", "unarchive", "read", "empty":
		if len(args) < 3 {
			fmt.Fprintf(os.Stderr, "usage: convctl %s <kind> <id>\n", args[0])
			os.Exit(1)
		}
		cmdConversationAction(c, args[0], args[1], args[2])
	case "pin", "unpin":
		if len(args) < 3 {
			fmt.Fprintf(os.Stderr, "usage: convctl %s <kind> <id>\n", args[0])
			os.Exit(1)
		}
		cmdPin(c, args[0] == "pin", args[1], args[2])
	case "delete":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: convctl delete <identity>")
			os.Exit(1)
		}
		cmdDelete(c, args[1])
	case "status":
		cmdStatus(c, *jsonFlag)
	case "watch":
		cmdWatch(c)
	case "recalculate":
		cmdRecalculate(c)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: convctl [--addr <host:port>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  list                       List conversations")
	fmt.Fprintln(os.Stderr, "  archived                   List archived conversations")
	fmt.Fprintln(os.Stderr, "  archive <kind> <id>        Archive a conversation")
	fmt.Fprintln(os.Stderr, "  unarchive <kind> <id>      Unarchive a conversation")
	fmt.Fprintln(os.Stderr, "  read <kind> <id>           Mark a conversation as read")
	fmt.Fprintln(os.Stderr, "  empty <kind> <id>          Delete all messages of a conversation")
	fmt.Fprintln(os.Stderr, "  pin <kind> <id>            Pin a conversation")
	fmt.Fprintln(os.Stderr, "  unpin <kind> <id>          Unpin a conversation")
	fmt.Fprintln(os.Stderr, "  delete <identity>          Delete a contact conversation")
	fmt.Fprintln(os.Stderr, "  status                     Show daemon status")
	fmt.Fprintln(os.Stderr, "  watch                      Stream conversation events")
	fmt.Fprintln(os.Stderr, "  recalculate                Recalculate lastUpdate timestamps")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "kinds: contact, group, distribution-list")
}

type client struct {
	base string
	http *http.Client
}

func (c *client) get(path string) ([]byte, error) {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func (c *client) do(method, path string) error {
	req, err := http.NewRequest(method, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}

type entry struct {
	UID            string `json:"uid"`
	Kind           string `json:"kind"`
	Identifier     string `json:"identifier"`
	DisplayName    string `json:"display_name"`
	MessageCount   int64  `json:"message_count"`
	LastUpdate     int64  `json:"last_update"`
	UnreadCount    int64  `json:"unread_count"`
	IsPinned       bool   `json:"is_pinned"`
	IsMarkedUnread bool   `json:"is_marked_unread"`
	Position       int    `json:"position"`
}

func cmdList(c *client, jsonOut bool, query string, unread bool) {
	path := "/v1/conversations?q=" + query
	if unread {
		path += "&unread=true"
	}
	body, err := c.get(path)
	if err != nil {
		fatal(err)
	}
	printEntries(body, jsonOut)
}

func cmdArchived(c *client, jsonOut bool, query string) {
	body, err := c.get("/v1/conversations/archived?q=" + query)
	if err != nil {
		fatal(err)
	}
	printEntries(body, jsonOut)
}

func printEntries(body []byte, jsonOut bool) {
	if jsonOut {
		fmt.Println(string(body))
		return
	}
	var payload struct {
		Data []entry `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		fatal(err)
	}
	for _, e := range payload.Data {
		marker := " "
		if e.IsPinned {
			marker = "*"
		}
		unreadSuffix := ""
		if e.UnreadCount > 0 {
			unreadSuffix = fmt.Sprintf(" (%d unread)", e.UnreadCount)
		} else if e.IsMarkedUnread {
			unreadSuffix = " (marked unread)"
		}
		fmt.Printf("%s %-18s %-30s %d messages%s\n",
			marker, e.Kind+"/"+e.Identifier, e.DisplayName, e.MessageCount, unreadSuffix)
	}
}

func cmdConversationAction(c *client, action, kind, id string) {
	if err := c.do(http.MethodPost, fmt.Sprintf("/v1/conversations/%s/%s/%s", kind, id, action)); err != nil {
		fatal(err)
	}
	fmt.Printf("%s: %s/%s\n", action, kind, id)
}

func cmdPin(c *client, pin bool, kind, id string) {
	method := http.MethodPost
	verb := "pinned"
	if !pin {
		method = http.MethodDelete
		verb = "unpinned"
	}
	if err := c.do(method, fmt.Sprintf("/v1/conversations/%s/%s/pin", kind, id)); err != nil {
		fatal(err)
	}
	fmt.Printf("%s: %s/%s\n", verb, kind, id)
}

func cmdDelete(c *client, identity string) {
	if err := c.do(http.MethodDelete, "/v1/conversations/contact/"+identity); err != nil {
		fatal(err)
	}
	fmt.Printf("deleted: contact/%s\n", identity)
}

func cmdStatus(c *client, jsonOut bool) {
	body, err := c.get("/v1/status")
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		fmt.Println(string(body))
		return
	}
	var payload struct {
		State            string `json:"state"`
		HasConversations bool   `json:"has_conversations"`
		ArchivedCount    int    `json:"archived_count"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		fatal(err)
	}
	fmt.Printf("State:             %s\n", payload.State)
	fmt.Printf("Has conversations: %v\n", payload.HasConversations)
	fmt.Printf("Archived:          %d\n", payload.ArchivedCount)
}

func cmdWatch(c *client) {
	// Streaming connection, so no client timeout here.
	streamClient := &http.Client{}
	resp, err := streamClient.Get(c.base + "/v1/events")
	if err != nil {
		fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		fatal(fmt.Errorf("unexpected status %s", resp.Status))
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			fmt.Println(data)
		}
	}
	if err := scanner.Err(); err != nil {
		fatal(err)
	}
}

func cmdRecalculate(c *client) {
	if err := c.do(http.MethodPost, "/v1/maintenance/recalculate-last-updates"); err != nil {
		fatal(err)
	}
	fmt.Println("lastUpdate timestamps recalculated")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
