// Package main provides a terminal client that watches the viewer's playback frames.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/gogo/crewtrace/internal/transport/ws"
)

// Client represents a WebSocket client.
type Client struct {
	conn    *websocket.Conn
	traceID string
	done    chan struct{}
}

// NewClient creates a new client and connects to the viewer.
func NewClient(addr string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	return &Client{
		conn: conn,
		done: make(chan struct{}),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	close(c.done)
	return c.conn.Close()
}

// SendHello sends a hello message and waits for hello_ack. Frames pushed
// before the ack are printed.
func (c *Client) SendHello() error {
	msg := ws.BaseMessage{
		Type: ws.TypeHello,
		Ts:   time.Now().UnixMilli(),
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write hello: %w", err)
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read hello_ack: %w", err)
		}

		var base ws.BaseMessage
		if err := json.Unmarshal(data, &base); err != nil {
			return fmt.Errorf("unmarshal hello_ack: %w", err)
		}

		switch base.Type {
		case ws.TypeHelloAck:
			c.traceID = base.TraceID
			return nil
		case ws.TypeError:
			var errMsg ws.ErrorMessage
			json.Unmarshal(data, &errMsg)
			return fmt.Errorf("hello failed: %s - %s", errMsg.Code, errMsg.Message)
		case ws.TypeFrame:
			printMessage(data)
		default:
			return fmt.Errorf("expected hello_ack, got: %s", base.Type)
		}
	}
}

// SendScrub moves the shared playback cursor.
func (c *Client) SendScrub(index int) error {
	return c.conn.WriteJSON(ws.ScrubMessage{
		BaseMessage: ws.BaseMessage{Type: ws.TypeScrub, Ts: time.Now().UnixMilli()},
		Index:       index,
	})
}

// SendFollow resumes tracking the newest event.
func (c *Client) SendFollow() error {
	return c.conn.WriteJSON(ws.BaseMessage{Type: ws.TypeFollow, Ts: time.Now().UnixMilli()})
}

// ReadMessages reads and prints messages from the viewer.
func (c *Client) ReadMessages() {
	for {
		select {
		case <-c.done:
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Printf("Read error: %v", err)
				}
				return
			}
			printMessage(data)
		}
	}
}

func printMessage(data []byte) {
	var base ws.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		log.Printf("Unmarshal error: %v", err)
		return
	}

	switch base.Type {
	case ws.TypeFrame:
		var msg ws.FrameMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Unmarshal error: %v", err)
			return
		}
		fmt.Print(renderFrame(msg.Frame))
	case ws.TypeError:
		var msg ws.ErrorMessage
		json.Unmarshal(data, &msg)
		fmt.Printf("\n[error] %s: %s\n", msg.Code, msg.Message)
	default:
		fmt.Printf("\n[%s]\n", base.Type)
	}
}

func main() {
	addr := flag.String("addr", "ws://localhost:8090/ws", "Viewer WebSocket address")
	flag.Parse()

	log.SetFlags(log.Ltime)

	fmt.Printf("Connecting to %s...\n", *addr)

	client, err := NewClient(*addr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	if err := client.SendHello(); err != nil {
		log.Fatalf("Hello failed: %v", err)
	}

	if client.traceID != "" {
		fmt.Printf("Watching trace %s\n", client.traceID)
	} else {
		fmt.Println("No trace running yet.")
	}
	fmt.Println("Commands: /scrub <index>, /follow, /quit")

	go client.ReadMessages()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	scanner := bufio.NewScanner(os.Stdin)

	for {
		select {
		case <-interrupt:
			fmt.Println("\nInterrupted")
			return
		default:
			if !scanner.Scan() {
				return
			}

			input := strings.TrimSpace(scanner.Text())
			switch {
			case input == "":
				continue
			case input == "/quit":
				fmt.Println("Bye!")
				return
			case input == "/follow":
				if err := client.SendFollow(); err != nil {
					log.Printf("Send error: %v", err)
				}
			case strings.HasPrefix(input, "/scrub"):
				index, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(input, "/scrub")))
				if err != nil {
					fmt.Println("usage: /scrub <index>")
					continue
				}
				if err := client.SendScrub(index); err != nil {
					log.Printf("Send error: %v", err)
				}
			default:
				fmt.Println("unknown command")
			}
		}
	}
}
