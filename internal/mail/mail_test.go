package mail

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	apperrors "github.com/abgdnv/shopassist/internal/errors"
	"github.com/abgdnv/shopassist/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type receivedMessage struct {
	path       string
	user, pass string
	form       map[string][]string
	files      map[string][]byte
}

type fakeMailgun struct {
	mu       sync.Mutex
	received []receivedMessage
	status   int
	body     string
}

func (f *fakeMailgun) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := receivedMessage{path: r.URL.Path, files: map[string][]byte{}}
	msg.user, msg.pass, _ = r.BasicAuth()
	err := r.ParseMultipartForm(10 << 20)
	switch {
	case errors.Is(err, http.ErrNotMultipart):
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		msg.form = r.PostForm
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	default:
		msg.form = r.MultipartForm.Value
	}
	for _, headers := range fileHeaders(r) {
		for _, h := range headers {
			file, err := h.Open()
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			data, _ := io.ReadAll(file)
			_ = file.Close()
			msg.files[h.Filename] = data
		}
	}
	f.received = append(f.received, msg)
	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(f.body))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"id":"<20260301.1@mg.example.com>","message":"Queued. Thank you."}`))
}

func fileHeaders(r *http.Request) map[string][]*multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	return r.MultipartForm.File
}

func newClient(t *testing.T, fake *fakeMailgun) *MailgunClient {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	return NewMailgunClient(config.MailgunConfig{
		Domain:  "mg.example.com",
		APIKey:  "key-test",
		From:    "Store <ops@example.com>",
		APIBase: server.URL + "/v3",
	}, server.Client(), slog.New(slog.DiscardHandler))
}

func TestMailgunClient_Send(t *testing.T) {
	// given
	fake := &fakeMailgun{}
	client := newClient(t, fake)

	// when
	delivery, err := client.Send(context.Background(), Email{
		To:          []string{"a@example.com", "b@example.com"},
		Subject:     "Report",
		Text:        "See attached",
		Attachments: []Attachment{{Name: "stock.csv", Content: []byte("sku\nA1\n")}},
	})

	// then
	require.NoError(t, err)
	assert.Equal(t, "<20260301.1@mg.example.com>", delivery.ID)
	assert.Equal(t, "Queued. Thank you.", delivery.Message)

	require.Len(t, fake.received, 1)
	got := fake.received[0]
	assert.Equal(t, "/v3/mg.example.com/messages", got.path)
	assert.Equal(t, "api", got.user)
	assert.Equal(t, "key-test", got.pass)
	assert.Equal(t, []string{"Store <ops@example.com>"}, got.form["from"])
	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com"}, got.form["to"])
	assert.Equal(t, []string{"Report"}, got.form["subject"])
	assert.Equal(t, []string{"See attached"}, got.form["text"])
	assert.Equal(t, []byte("sku\nA1\n"), got.files["stock.csv"])
}

func TestMailgunClient_Send_RemoteRejects(t *testing.T) {
	// given
	fake := &fakeMailgun{status: http.StatusBadRequest, body: `{"message":"to parameter is not a valid address"}`}
	client := newClient(t, fake)

	// when
	delivery, err := client.Send(context.Background(), Email{To: []string{"nobody"}, Subject: "x", Text: "y"})

	// then
	assert.Nil(t, delivery)
	require.ErrorIs(t, err, apperrors.ErrMailDelivery)
	assert.Contains(t, err.Error(), "to parameter is not a valid address")
}

func TestMailgunClient_Send_NoRecipients(t *testing.T) {
	// given
	fake := &fakeMailgun{}
	client := newClient(t, fake)

	// when
	_, err := client.Send(context.Background(), Email{Subject: "x", Text: "y"})

	// then
	require.ErrorIs(t, err, apperrors.ErrMailDelivery)
	assert.Empty(t, fake.received)
}

func TestParseRecipients(t *testing.T) {
	testCases := []struct {
		in       string
		expected []string
	}{
		{in: "a@example.com", expected: []string{"a@example.com"}},
		{in: " a@example.com, b@example.com ,", expected: []string{"a@example.com", "b@example.com"}},
		{in: "", expected: nil},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.expected, ParseRecipients(tc.in))
		})
	}
}
