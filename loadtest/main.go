package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	BaseURL    = "http://localhost:8080"
	WSURL      = "ws://localhost:8080/ws"
	GuestCount = 50 // ⚠️ Start small. SQLite serializes writers.
	MsgCount   = 20 // Messages per guest
)

type JoinResponse struct {
	Token     string `json:"access_token"`
	Username  string `json:"username"`
	SessionID string `json:"session_id"`
}

type RoomResponse struct {
	Members  []string          `json:"users"`
	Messages []json.RawMessage `json:"msgs"`
}

func main() {
	log.Printf("🔥 STARTING STRESS TEST: %d Guests, %d Messages each...", GuestCount, MsgCount)

	// 1. Host mints a fresh session id (the room exists once the first guest connects)
	host, err := join("host", "")
	if err != nil {
		log.Fatalf("❌ Host join failed: %v", err)
	}
	sessionID := host.SessionID
	log.Printf("🏠 Session %s", sessionID)

	// 2. Everyone joins the same room at once and chats
	var wg sync.WaitGroup
	var mu sync.Mutex
	sent := 0
	for i := 0; i < GuestCount; i++ {
		wg.Add(1)
		go func(guestID int) {
			defer wg.Done()
			n := runGuest(sessionID, fmt.Sprintf("guest_%d", guestID))
			mu.Lock()
			sent += n
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	// 3. Check nothing got lost
	time.Sleep(500 * time.Millisecond)
	room, err := fetchRoom(sessionID)
	if err != nil {
		log.Fatalf("❌ Fetch room failed: %v", err)
	}
	log.Printf("📊 sent=%d stored=%d members_left=%d", sent, len(room.Messages), len(room.Members))
	if len(room.Messages) != sent {
		log.Fatalf("❌ LOST %d MESSAGES", sent-len(room.Messages))
	}
	log.Println("✅ LOAD TEST COMPLETE")
}

// runGuest joins, sends MsgCount messages and leaves. Returns how many were written.
func runGuest(sessionID, username string) int {
	guest, err := join(username, sessionID)
	if err != nil {
		log.Printf("❌ Join Failed [%s]: %v", username, err)
		return 0
	}

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s", WSURL, guest.Token), nil)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", username, err)
		return 0
	}
	defer conn.Close()

	// Drain snapshots so the server's write pump never blocks on us.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sent := 0
	for i := 0; i < MsgCount; i++ {
		msg := map[string]string{
			"type": "send",
			"text": fmt.Sprintf("LoadTest Msg %d from %s", i, username),
		}
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("❌ Send Fail [%s]: %v", username, err)
			break
		}
		sent++
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}
	// Give the server time to persist the tail before we hang up.
	time.Sleep(200 * time.Millisecond)
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	log.Printf("✅ %s finished sending %d msgs", username, sent)
	return sent
}

func join(username, sessionID string) (*JoinResponse, error) {
	resp, err := postJSON("/api/sessions", map[string]string{"username": username, "session_id": sessionID})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	var data JoinResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

func fetchRoom(sessionID string) (*RoomResponse, error) {
	resp, err := http.Get(BaseURL + "/api/rooms/" + sessionID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	var data RoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

func postJSON(endpoint string, data interface{}) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	return http.Post(BaseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}
