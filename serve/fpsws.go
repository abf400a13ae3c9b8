package serve

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	// Time allowed to write message to the client
	writeWait  = 10 * time.Second
	pingPeriod = 10 * time.Second
)

// Subscriber hands out streams of frame rate values.
type Subscriber interface {
	Subscribe() (<-chan int, func())
	Last() int
}

// FPSMessage is pushed to websocket clients.
type FPSMessage struct {
	FPS int `json:"fps"`
}

// FPSStream pushes every published frame rate to connected websocket
// clients. A new client immediately receives the last known value.
type FPSStream struct {
	upgrader websocket.Upgrader
	source   Subscriber
}

func NewFPSStream(s Subscriber) *FPSStream {
	return &FPSStream{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		source: s,
	}
}

func (f *FPSStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if _, ok := err.(websocket.HandshakeError); !ok {
			log.WithField("addr", r.RemoteAddr).Errorf("Websocket handshake failed for fps stream: %v", err)
		}
		return
	}
	go f.serve(ws)
}

func (f *FPSStream) serve(ws *websocket.Conn) {
	clog := log.WithField("addr", ws.RemoteAddr())
	clog.Info("connected to fps socket")
	defer func() {
		ws.Close()
		clog.Info("disconnected from fps socket")
	}()
	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	updates, cancel := f.source.Subscribe()
	defer cancel()

	// Incoming messages are ignored but must be read to process control
	// messages and notice the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	send := func(fps int) error {
		msg, err := json.Marshal(&FPSMessage{FPS: fps})
		if err != nil {
			return err
		}
		ws.SetWriteDeadline(time.Now().Add(writeWait))
		return ws.WriteMessage(websocket.TextMessage, msg)
	}

	if err := send(f.source.Last()); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			return
		case fps, ok := <-updates:
			if !ok {
				return
			}
			if err := send(fps); err != nil {
				return
			}
		case <-pingTicker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}
