package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	BaseURL   = "http://localhost"
	WSURL     = "ws://localhost/ws"
	PairCount = 250 // ⚠️ Start small. Every join costs a PBKDF2 derivation on the server.
	MsgCount  = 20  // Messages per user
)

type AuthResponse struct {
	Token string `json:"access_token"`
	ID    int    `json:"id"`
}

type frame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

var received, rejected atomic.Int64

func main() {
	log.Printf("🔥 STARTING STRESS TEST: %d Users in %d rooms, %d Messages each...", PairCount*2, PairCount, MsgCount)
	var wg sync.WaitGroup

	// Pairs share a room: user 0a and 0b join "room-0", and so on.
	for i := 0; i < PairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Printf("✅ LOAD TEST COMPLETE: %d messages received, %d sends rejected", received.Load(), rejected.Load())
}

func runPair(pairID int) {
	userA := fmt.Sprintf("u_%d_a@loadtest.local", pairID)
	userB := fmt.Sprintf("u_%d_b@loadtest.local", pairID)
	pass := "password123"
	room := fmt.Sprintf("room-%d", pairID)

	tokenA := authenticate(userA, pass)
	tokenB := authenticate(userB, pass)
	if tokenA == "" || tokenB == "" {
		return // Failed auth
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go spamChat(&wsWg, tokenA, room, userA)
	go spamChat(&wsWg, tokenB, room, userB)
	wsWg.Wait()
}

// authenticate registers (ignores error if exists) and logs in
func authenticate(email, password string) string {
	creds := map[string]string{"email": email, "password": password}
	if resp, err := postJSON("/register", creds); err == nil {
		resp.Body.Close()
	}

	resp, err := postJSON("/login", creds)
	if err != nil {
		log.Printf("❌ Login Failed [%s]: %v", email, err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ Login Failed [%s]: %s", email, resp.Status)
		return ""
	}

	var data AuthResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.Token
}

func spamChat(wg *sync.WaitGroup, token, room, user string) {
	defer wg.Done()

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s", WSURL, token), nil)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", user, err)
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"type": "join", "key": room}); err != nil {
		log.Printf("❌ Join Fail [%s]: %v", user, err)
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		readFrames(conn)
	}()

	for i := 0; i < MsgCount; i++ {
		msg := map[string]string{
			"type":    "send",
			"content": fmt.Sprintf("LoadTest Msg %d from pair %s", i, room),
		}
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("❌ Send Fail [%s]: %v", user, err)
			break
		}
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}

	// Give the partner's last messages a moment to arrive.
	time.Sleep(time.Second)
	conn.WriteJSON(map[string]string{"type": "leave"})
	<-done
	log.Printf("✅ %s finished sending %d msgs", user, MsgCount)
}

// readFrames counts delivered messages until the connection closes. The
// server batches several newline-delimited frames into one websocket message.
func readFrames(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sc := bufio.NewScanner(bytes.NewReader(data))
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			var f frame
			if err := json.Unmarshal(sc.Bytes(), &f); err != nil {
				continue
			}
			switch f.Type {
			case "message":
				received.Add(1)
			case "rejected":
				rejected.Add(1)
			}
		}
	}
}

func postJSON(endpoint string, data interface{}) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	return http.Post(BaseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}
