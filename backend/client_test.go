package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", WithTimeout(5*time.Second))
}

func TestChat(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var in map[string]string
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if in["user_input"] != "how much water?" {
			t.Errorf("user_input = %q", in["user_input"])
		}
		w.Write([]byte(`{"response":"About 40 litres.","timestamp":"2024-05-01T10:00:00"}`))
	})

	got, err := c.Chat(context.Background(), "how much water?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "About 40 litres." {
		t.Errorf("reply = %q", got)
	}
}

func TestSelectCategory(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/select_category/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"category":"energy"}` {
			t.Errorf("body = %s", body)
		}
		w.Write([]byte(`{"message":"Category energy selected"}`))
	})
	if err := c.SelectCategory(context.Background(), "energy"); err != nil {
		t.Fatalf("SelectCategory: %v", err)
	}
}

func TestAPIErrorDetail(t *testing.T) {
	for _, tt := range []struct {
		name, body, want string
	}{
		{"string", `{"detail":"Invalid category"}`, "Invalid category"},
		{"list", `{"detail":[{"loc":["body"]}]}`, `[{"loc":["body"]}]`},
		{"plain", "upstream down\n", "upstream down"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(tt.body))
			})
			err := c.SelectCategory(context.Background(), "plastic")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %v", err)
			}
			if apiErr.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d", apiErr.StatusCode)
			}
			if apiErr.Detail != tt.want {
				t.Errorf("detail = %q, want %q", apiErr.Detail, tt.want)
			}
		})
	}
}

func TestTranscribeMultipart(t *testing.T) {
	requests := 0
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Path != "/transcribe-openai/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		defer file.Close()
		if header.Filename != "recording.flac" {
			t.Errorf("filename = %q", header.Filename)
		}
		if ct := header.Header.Get("Content-Type"); ct != "audio/flac" {
			t.Errorf("part Content-Type = %q", ct)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "fLaC-data" {
			t.Errorf("data = %q", data)
		}
		w.Write([]byte(`{"transcription":"what is my carbon footprint"}`))
	})

	got, err := c.Transcribe(context.Background(), Upload{
		FileName: "recording.flac",
		MIME:     "audio/flac",
		Data:     strings.NewReader("fLaC-data"),
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "what is my carbon footprint" {
		t.Errorf("transcription = %q", got)
	}
	if requests != 1 {
		t.Errorf("requests = %d, want 1", requests)
	}
}

func TestTranscribeMissingField(t *testing.T) {
	for _, body := range []string{`{}`, `{"transcription":null}`, ``} {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		})
		got, err := c.Transcribe(context.Background(), Upload{FileName: "recording.wav", MIME: "audio/wav", Data: strings.NewReader("x")})
		if err != nil {
			t.Fatalf("body %q: %v", body, err)
		}
		if got != "" {
			t.Errorf("body %q: transcription = %q", body, got)
		}
	}
}

func TestTranscribeServerError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"whisper unavailable"}`))
	})
	_, err := c.Transcribe(context.Background(), Upload{FileName: "recording.wav", MIME: "audio/wav", Data: strings.NewReader("x")})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 500 {
		t.Fatalf("expected 500 APIError, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer s3cret" {
			t.Errorf("Authorization = %q", got)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, WithToken("s3cret"))
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}

func TestSessionEndpoints(t *testing.T) {
	var seen []string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		w.Write([]byte(`{"message":"ok"}`))
	})
	ctx := context.Background()
	if err := c.Health(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.EndSession(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.ClearLogs(ctx); err != nil {
		t.Fatal(err)
	}
	want := []string{"GET /health/", "DELETE /end_session/", "DELETE /clear_logs/"}
	if strings.Join(seen, ",") != strings.Join(want, ",") {
		t.Errorf("requests = %v, want %v", seen, want)
	}
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(url, WithTimeout(time.Second))
	if _, err := c.Chat(context.Background(), "hi"); err == nil {
		t.Fatal("expected error from closed server")
	}
}

func TestTracedClientMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	tc := NewTracedClient(time.Second)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := tc.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if string(resp.Body) != "ok" || resp.StatusCode != 200 {
		t.Errorf("resp = %d %q", resp.StatusCode, resp.Body)
	}
	if resp.Metrics.Total <= 0 {
		t.Error("expected Total > 0")
	}
}
