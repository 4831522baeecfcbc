//go:build integration

package test_test

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

var testBinary string

func TestMain(m *testing.M) {
	testBinary = os.Getenv("ECOCHAT_TEST_BIN")
	if testBinary == "" {
		fmt.Fprintln(os.Stderr, "ECOCHAT_TEST_BIN not set; build the binary and point it there")
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func generateToneWAV(path string, sampleRate int, durationS float64) error {
	const headerSize = 44
	numSamples := int(float64(sampleRate) * durationS)
	dataSize := numSamples * 2

	buf := make([]byte, headerSize+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(headerSize-8+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)  // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16) // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	for i := range numSamples {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint16(buf[headerSize+2*i:], uint16(v))
	}
	return os.WriteFile(path, buf, 0644)
}

// fakeBackend serves the chat API the client talks to.
type fakeBackend struct {
	transcription  string
	failTranscribe bool
	failSelect     bool

	mu        sync.Mutex
	chats     []string
	uploads   []string
	endedSess int
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/select_category/":
		var in struct{ Category string }
		json.NewDecoder(r.Body).Decode(&in)
		if b.failSelect {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"detail":"Invalid category"}`)
			return
		}
		fmt.Fprintf(w, `{"message":"Category %s selected"}`, in.Category)
	case "/chat/":
		var in struct {
			UserInput string `json:"user_input"`
		}
		json.NewDecoder(r.Body).Decode(&in)
		b.mu.Lock()
		b.chats = append(b.chats, in.UserInput)
		b.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{
			"response":  "answer: " + in.UserInput,
			"timestamp": "2024-05-01T10:00:00",
		})
	case "/transcribe-openai/":
		_, header, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.uploads = append(b.uploads, header.Filename)
		b.mu.Unlock()
		if b.failTranscribe {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"detail":"whisper unavailable"}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"transcription": b.transcription})
	case "/end_session/":
		b.mu.Lock()
		b.endedSess++
		b.mu.Unlock()
		fmt.Fprint(w, `{"message":"Session ended"}`)
	default:
		http.NotFound(w, r)
	}
}

func cmds(parts ...string) string {
	return strings.Join(parts, "\n") + "\n"
}

type result struct {
	out    string
	logDir string
}

func runEcochat(t *testing.T, be *fakeBackend, stdin string) result {
	t.Helper()
	srv := httptest.NewServer(be)
	defer srv.Close()

	dir := t.TempDir()
	wav := filepath.Join(dir, "tone.wav")
	if err := generateToneWAV(wav, 16000, 1.0); err != nil {
		t.Fatalf("generating wav: %v", err)
	}
	logDir := filepath.Join(dir, "logs")

	cmd := exec.Command(testBinary, "-logpath", logDir, "-env", filepath.Join(dir, "none.env"), "-test", wav)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = append(os.Environ(), "ECOCHAT_API_URL="+srv.URL, "ECOCHAT_AUDIO_FORMAT=flac")

	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("ecochat exited with error: %v\noutput: %s", err, out)
	}
	return result{out: string(out), logDir: logDir}
}

func (r result) requireLine(t *testing.T, line string) {
	t.Helper()
	for _, l := range strings.Split(r.out, "\n") {
		if l == line {
			return
		}
	}
	t.Fatalf("missing line %q in output:\n%s", line, r.out)
}

func (r result) readLog(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(r.logDir, name))
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	return string(data)
}

func TestTypedQuestion(t *testing.T) {
	be := &fakeBackend{}
	r := runEcochat(t, be, cmds("CATEGORY energy", "TYPE how much does a heat pump save", "SEND", "SHOW", "QUIT"))

	r.requireLine(t, "bot: You selected energy. You can now ask questions.")
	r.requireLine(t, "user: how much does a heat pump save")
	r.requireLine(t, "bot: answer: how much does a heat pump save")
	r.requireLine(t, `category=energy typing=false gesture=idle input=""`)

	convo := r.readLog(t, "conversation_log.txt")
	if !strings.Contains(convo, "how much does a heat pump save") {
		t.Errorf("conversation log missing user turn:\n%s", convo)
	}
}

func TestSendWithoutCategory(t *testing.T) {
	be := &fakeBackend{}
	r := runEcochat(t, be, cmds("TYPE hello", "SEND", "SHOW", "QUIT"))

	r.requireLine(t, "bot: Please select a category first.")
	r.requireLine(t, `category= typing=false gesture=idle input="hello"`)
	if len(be.chats) != 0 {
		t.Errorf("chat requests = %v, want none", be.chats)
	}
}

func TestCategoryFailure(t *testing.T) {
	be := &fakeBackend{failSelect: true}
	r := runEcochat(t, be, cmds("CATEGORY water", "TYPE how long should I shower", "SEND", "SHOW", "QUIT"))

	r.requireLine(t, "bot: Error selecting category. Please try again.")
	r.requireLine(t, "bot: answer: how long should I shower")
	r.requireLine(t, `category=water typing=false gesture=idle input=""`)
	if len(be.chats) != 1 {
		t.Errorf("chat requests = %v, want one after failed selection", be.chats)
	}
}

func TestVoiceQuestion(t *testing.T) {
	be := &fakeBackend{transcription: "how much water does a shower use"}
	r := runEcochat(t, be, cmds(
		"CATEGORY water",
		"PRESS 100", "SLEEP 400", "RELEASE", "WAIT",
		"SEND", "SHOW", "QUIT",
	))

	r.requireLine(t, "transcript how much water does a shower use")
	r.requireLine(t, "user: how much water does a shower use")
	r.requireLine(t, "bot: answer: how much water does a shower use")
	if len(be.uploads) != 1 || be.uploads[0] != "recording.flac" {
		t.Errorf("uploads = %v, want one recording.flac", be.uploads)
	}
}

func TestHotkeyVoice(t *testing.T) {
	be := &fakeBackend{transcription: "emissions of a short flight"}
	r := runEcochat(t, be, cmds("KEYDOWN", "SLEEP 400", "KEYUP", "WAIT", "SHOW", "QUIT"))

	r.requireLine(t, "transcript emissions of a short flight")
	r.requireLine(t, `category= typing=false gesture=idle input="emissions of a short flight"`)
}

func TestDragCancelKeepsTranscript(t *testing.T) {
	be := &fakeBackend{transcription: "partial question"}
	r := runEcochat(t, be, cmds("PRESS 100", "SLEEP 300", "MOVE 80", "MOVE 10", "MOVE 0", "RELEASE", "WAIT", "SHOW", "QUIT"))

	r.requireLine(t, "transcript partial question")
	if len(be.uploads) != 1 {
		t.Errorf("uploads = %d, want 1", len(be.uploads))
	}
}

func TestEmptyTranscription(t *testing.T) {
	be := &fakeBackend{}
	r := runEcochat(t, be, cmds("PRESS 0", "SLEEP 300", "RELEASE", "WAIT", "SHOW", "QUIT"))

	if strings.Contains(r.out, "transcript ") {
		t.Errorf("empty transcription reached the input:\n%s", r.out)
	}
	r.requireLine(t, `category= typing=false gesture=idle input=""`)
}

func TestTranscriptionFailureAlerts(t *testing.T) {
	be := &fakeBackend{failTranscribe: true}
	r := runEcochat(t, be, cmds("PRESS 0", "SLEEP 300", "RELEASE", "WAIT", "QUIT"))

	r.requireLine(t, "alert Transcription Failed: Could not process the audio.")
	if len(be.uploads) != 1 {
		t.Errorf("uploads = %d, want exactly one attempt", len(be.uploads))
	}
}

func TestBackEndsSession(t *testing.T) {
	be := &fakeBackend{}
	r := runEcochat(t, be, cmds("CATEGORY co2", "BACK", "SHOW", "QUIT"))

	r.requireLine(t, `category= typing=false gesture=idle input=""`)
	if be.endedSess != 1 {
		t.Errorf("end_session calls = %d, want 1", be.endedSess)
	}
}
