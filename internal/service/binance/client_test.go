package binance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestDecodeTrade(t *testing.T) {
	frame := []byte(`{"e":"trade","E":1700000000100,"T":1700000000000,"s":"BTCUSDT","t":1,"p":"43250.10","q":"0.015","X":"MARKET","m":true}`)
	tick, ok, err := decodeTrade(frame)
	if err != nil || !ok {
		t.Fatalf("decode: ok=%v err=%v", ok, err)
	}
	if tick.Symbol != "BTCUSDT" || tick.Timestamp != 1700000000000 || tick.Price != 43250.10 || tick.Volume != 0.015 {
		t.Fatalf("got %+v", tick)
	}
}

func TestDecodeTradeSkipsNonTrade(t *testing.T) {
	_, ok, err := decodeTrade([]byte(`{"result":null,"id":1}`))
	if err != nil || ok {
		t.Fatalf("ack frame: ok=%v err=%v", ok, err)
	}
}

func TestDecodeTradeBadPrice(t *testing.T) {
	if _, _, err := decodeTrade([]byte(`{"e":"trade","s":"X","T":1,"p":"abc","q":"1"}`)); err == nil {
		t.Fatal("expected price error")
	}
}

func TestClientStreamsTrades(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan subscribeRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var req subscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		subscribed <- req
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"result":null,"id":1}`))
		for i, sym := range []string{"BTCUSDT", "ETHUSDT"} {
			ev := map[string]interface{}{"e": "trade", "s": sym, "T": 1000 + i, "p": "10.5", "q": "2"}
			b, _ := json.Marshal(ev)
			_ = conn.WriteMessage(websocket.TextMessage, b)
		}
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New(url, []string{"BTCUSDT", "ETHUSDT"}, time.Millisecond, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := c.Subscribe(ctx); err != nil {
		t.Fatal(err)
	}
	req := <-subscribed
	if req.Method != "SUBSCRIBE" || len(req.Params) != 2 || req.Params[0] != "btcusdt@trade" {
		t.Fatalf("subscribe request %+v", req)
	}

	ticks, _ := c.Read(ctx)
	var got []string
	for tk := range ticks {
		got = append(got, tk.Symbol)
		if len(got) == 2 {
			break
		}
	}
	if len(got) != 2 || got[0] != "BTCUSDT" || got[1] != "ETHUSDT" {
		t.Fatalf("got %v", got)
	}
}
