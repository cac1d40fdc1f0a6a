// Package main provides a small CLI that tails the coordinator's live
// event stream over WebSocket.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
)

// StreamMessage mirrors the coordinator's stream envelope.
type StreamMessage struct {
	Type     string          `json:"type"`
	Event    json.RawMessage `json:"data,omitempty"`
	Session  json.RawMessage `json:"session,omitempty"`
	Sessions json.RawMessage `json:"sessions,omitempty"`
	Events   json.RawMessage `json:"events,omitempty"`
}

func main() {
	addr := flag.String("addr", "localhost:8080", "coordinator address")
	sessionID := flag.String("session", "", "tail a single session (default: all sessions)")
	flag.Parse()

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/v1/stream"}
	if *sessionID != "" {
		u.RawQuery = "session_id=" + url.QueryEscape(*sessionID)
	}

	log.Printf("Connecting to %s", u.String())
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				log.Printf("read: %v", err)
				return
			}

			var msg StreamMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				log.Printf("unmarshal: %v", err)
				continue
			}
			printMessage(msg)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	select {
	case <-done:
	case <-interrupt:
		log.Println("Interrupted, closing connection...")
		err := conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			log.Printf("write close: %v", err)
			return
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}

func printMessage(msg StreamMessage) {
	ts := time.Now().Format("15:04:05")
	switch msg.Type {
	case "init":
		fmt.Printf("[%s] connected, snapshot received\n", ts)
	case "event":
		fmt.Printf("[%s] event: %s\n", ts, compact(msg.Event))
	case "session_created", "session_updated", "session_deleted":
		fmt.Printf("[%s] %s: %s\n", ts, msg.Type, compact(msg.Session))
	default:
		fmt.Printf("[%s] %s\n", ts, msg.Type)
	}
}

func compact(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
