package main

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mevdschee/tqingest/ilp"
	"github.com/mevdschee/tqingest/sender"
)

func TestParseRow(t *testing.T) {
	require := require.New(t)

	r, err := parseRow([]byte(`{"table":"trades","symbols":{"side":"sell","sym":"ETH-USD"},` +
		`"columns":{"qty":3,"price":2615.54,"ok":true,"note":"x","gone":null,"v":[1,2.5]},"at":1700000000000000000}`))
	require.NoError(err)
	require.Equal("trades", r.Table)
	require.Equal([]ilp.Field{ilp.F("side", "sell"), ilp.F("sym", "ETH-USD")}, r.Symbols)
	require.Equal([]ilp.Field{
		ilp.F("gone", nil),
		ilp.F("note", "x"),
		ilp.F("ok", true),
		ilp.F("price", 2615.54),
		ilp.F("qty", int64(3)),
		ilp.F("v", []float64{1, 2.5}),
	}, r.Columns)
	require.Equal(ilp.AtNanos(1700000000000000000), r.At)

	r, err = parseRow([]byte(`{"table":"t","columns":{"x":1}}`))
	require.NoError(err)
	require.True(r.At.IsServerTime())
}

func TestParseRow_Errors(t *testing.T) {
	for _, line := range []string{
		`not json`,
		`{"table":"t","columns":{"x":{"nested":1}}}`,
		`{"table":"t","columns":{"x":[1,"a"]}}`,
		`{"table":"t","symbols":{"s":1}}`,
	} {
		_, err := parseRow([]byte(line))
		require.Error(t, err, line)
	}
}

func TestPump(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/settings" {
			http.NotFound(w, r)
			return
		}
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ctx := context.Background()
	s, err := sender.FromConf(ctx, "http::addr="+srv.Listener.Addr().String()+";auto_flush=off;")
	require.NoError(t, err)

	input := strings.Join([]string{
		`{"table":"t","columns":{"x":1}}`,
		``,
		`garbage`,
		`{"table":"bad?table","columns":{"x":1}}`,
		`{"table":"t","symbols":{"s":"a"},"columns":{"f":0.5},"at":10}`,
	}, "\n")
	log := slog.New(slog.DiscardHandler)

	n, err := pump(ctx, s, bufio.NewScanner(strings.NewReader(input)), log)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, s.Close(ctx))

	require.Equal(t, []string{"t x=1i\nt,s=a f=0.5 10\n"}, bodies)
}
