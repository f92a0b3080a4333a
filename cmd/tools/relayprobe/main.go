package main

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxlay/voxlay/internal/model/voice"
)

// relayprobe dials a running relay, opens a voice session, sends one text
// message, and prints every outbound frame until the deadline.
func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	addr := flag.String("addr", "localhost:8080", "relay host:port")
	session := flag.String("session", "", "sessionID (generated when empty)")
	conversation := flag.String("conversation", "probe-conversation", "conversationId")
	personality := flag.String("personality", "Savantist", "personality key")
	text := flag.String("text", "Hello there", "text to send")
	timeout := flag.Duration("timeout", 30*time.Second, "how long to wait for frames")
	flag.Parse()

	sessionID := *session
	if sessionID == "" {
		sessionID = fmt.Sprintf("probe-%d", time.Now().UnixNano())
	}

	u := url.URL{
		Scheme:   "ws",
		Host:     *addr,
		Path:     "/api/voice/ws/" + sessionID,
		RawQuery: url.Values{"personality": {*personality}, "conversationId": {*conversation}}.Encode(),
	}

	log.Printf("dialing %s", u.String())
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(*timeout)
	conn.SetReadDeadline(deadline)

	sent := false
	for time.Now().Before(deadline) {
		var msg voice.OutboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			log.Fatalf("read failed: %v", err)
		}

		switch msg.Type {
		case voice.KindVoiceReady:
			log.Printf("<- voice_ready")
			if !sent {
				out := voice.InboundMessage{Type: voice.KindTextInput, Text: *text}
				if err := conn.WriteJSON(out); err != nil {
					log.Fatalf("send failed: %v", err)
				}
				log.Printf("-> text_input %q", *text)
				sent = true
			}
		case voice.KindAudioOutput:
			log.Printf("<- audio_output bytes=%d", len(msg.Audio))
		case voice.KindError:
			log.Printf("<- error: %s", msg.Message)
		default:
			log.Printf("<- %s %s%s", msg.Type, msg.Text, msg.Message)
		}
	}
}
