package telegram

import (
	"errors"
	"io"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harun/sessionbot/internal/config"
	"github.com/rs/zerolog"
)

// fakeAPI records what the bot sends instead of calling Telegram.
type fakeAPI struct {
	mu       sync.Mutex
	nextID   int
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	uploads  map[string]string // file name -> content

	sendErr    error
	requestErr error
	notOk      bool

	updates chan tgbotapi.Update
	stopped bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		updates: make(chan tgbotapi.Update, 8),
		uploads: make(map[string]string),
	}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	if doc, ok := c.(tgbotapi.DocumentConfig); ok {
		if fr, ok := doc.File.(tgbotapi.FileReader); ok {
			data, err := io.ReadAll(fr.Reader)
			if err != nil {
				return tgbotapi.Message{}, err
			}
			f.uploads[fr.Name] = string(data)
		}
	}
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	f.requests = append(f.requests, c)
	if f.notOk {
		return &tgbotapi.APIResponse{Ok: false, Description: "Bad Request: message can't be deleted"}, nil
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stopped {
		f.stopped = true
		close(f.updates)
	}
}

func (f *fakeAPI) lastSent() tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

var errAPI = errors.New("telegram: Forbidden: bot was blocked by the user")

func createTestBot(t *testing.T) (*Bot, *fakeAPI) {
	t.Helper()
	api := newFakeAPI()
	bot := NewWithAPI(api, tgbotapi.User{ID: 123456789, UserName: "testbot"},
		&config.TelegramConfig{PollTimeout: 1}, zerolog.Nop())
	return bot, api
}
