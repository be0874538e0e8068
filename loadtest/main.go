package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	password = "password123"
	readWait = 5 * time.Second
)

var (
	baseURL    = flag.String("base", "http://localhost:8080", "HTTP base url")
	wsURL      = flag.String("ws", "ws://localhost:8080/ws", "websocket url")
	groupCount = flag.Int("groups", 100, "number of three-member groups")
	msgCount   = flag.Int("messages", 20, "messages sent per user")
)

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
}

type session struct {
	Token    string    `json:"access_token"`
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

type frame struct {
	Event string `json:"event"`
}

var sent, received, dropped atomic.Int64

func main() {
	flag.Parse()
	log.Printf("Starting load test: %d groups, %d users, %d messages each", *groupCount, *groupCount*3, *msgCount)
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < *groupCount; i++ {
		wg.Add(1)
		go func(groupID int) {
			defer wg.Done()
			runGroup(groupID)
		}(i)
	}
	wg.Wait()

	// Every message should reach the two other members.
	expected := sent.Load() * 2
	log.Printf("Load test complete in %s: sent=%d received=%d/%d failed=%d",
		time.Since(start).Round(time.Millisecond), sent.Load(), received.Load(), expected, dropped.Load())
}

func runGroup(groupID int) {
	members := make([]session, 0, 3)
	for _, suffix := range []string{"a", "b", "c"} {
		s, err := authenticate(fmt.Sprintf("lt%d%s", groupID, suffix))
		if err != nil {
			log.Printf("Auth failed [group %d]: %v", groupID, err)
			return
		}
		members = append(members, s)
	}

	chatID, err := createGroup(members[0], members[1].ID, members[2].ID, fmt.Sprintf("load %d", groupID))
	if err != nil {
		log.Printf("Create group failed [group %d]: %v", groupID, err)
		return
	}

	var wsWg sync.WaitGroup
	for _, m := range members {
		wsWg.Add(1)
		go func(m session) {
			defer wsWg.Done()
			chatter(m, chatID)
		}(m)
	}
	wsWg.Wait()
}

// authenticate registers (ignoring conflicts on reruns) and logs in.
func authenticate(username string) (session, error) {
	_, _ = postJSON("/register", "", map[string]string{
		"username": username,
		"email":    username + "@loadtest.local",
		"password": password,
	})

	var s session
	if err := call(http.MethodPost, "/login", "", map[string]string{"identifier": username, "password": password}, &s); err != nil {
		return session{}, err
	}
	return s, nil
}

func createGroup(admin session, b, c uuid.UUID, name string) (uuid.UUID, error) {
	var chat struct {
		ID uuid.UUID `json:"_id"`
	}
	body := map[string]any{"chatName": name, "participantIds": []string{b.String(), c.String()}}
	if err := call(http.MethodPost, "/api/chats/group", admin.Token, body, &chat); err != nil {
		return uuid.Nil, err
	}
	return chat.ID, nil
}

// chatter joins the chat room, types, then sends messages over REST while counting
// the messageReceived events pushed by the server.
func chatter(s session, chatID uuid.UUID) {
	conn, _, err := websocket.DefaultDialer.Dial(*wsURL+"?token="+url.QueryEscape(s.Token), nil)
	if err != nil {
		log.Printf("WS connect failed [%s]: %v", s.Username, err)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readWait))
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if f.Event == "messageReceived" {
				received.Add(1)
			}
		}
	}()

	join := map[string]string{"event": "joinChat", "data": chatID.String()}
	typing := map[string]string{"event": "typing", "data": chatID.String()}
	if err := conn.WriteJSON(join); err != nil {
		log.Printf("Join failed [%s]: %v", s.Username, err)
		return
	}
	_ = conn.WriteJSON(typing)

	for i := 0; i < *msgCount; i++ {
		content := fmt.Sprintf("LoadTest Msg %d from %s", i, s.Username)
		if err := call(http.MethodPost, "/api/messages/"+chatID.String()+"/", s.Token, map[string]string{"content": content}, nil); err != nil {
			dropped.Add(1)
			continue
		}
		sent.Add(1)
		// Small sleep to simulate a real network
		time.Sleep(10 * time.Millisecond)
	}
	<-done
	log.Printf("%s finished sending %d msgs", s.Username, *msgCount)
}

func call(method, endpoint, token string, body any, dst any) error {
	resp, err := postJSONMethod(method, endpoint, token, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, endpoint, err)
	}
	if !env.Success {
		return fmt.Errorf("%s %s: %d %s", method, endpoint, env.StatusCode, env.Message)
	}
	if dst == nil {
		return nil
	}
	return json.Unmarshal(env.Data, dst)
}

func postJSON(endpoint, token string, data any) (*http.Response, error) {
	resp, err := postJSONMethod(http.MethodPost, endpoint, token, data)
	if err == nil {
		resp.Body.Close()
	}
	return resp, err
}

func postJSONMethod(method, endpoint, token string, data any) (*http.Response, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(method, strings.TrimSuffix(*baseURL, "/")+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return http.DefaultClient.Do(req)
}
