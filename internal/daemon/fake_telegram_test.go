package daemon

import (
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harun/sessionbot/internal/config"
	"github.com/harun/sessionbot/internal/logger"
	"github.com/harun/sessionbot/internal/telegram"
)

// fakeTelegram stands in for the Bot API.
type fakeTelegram struct {
	mu       sync.Mutex
	nextID   int
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	uploads  map[string]string

	updates chan tgbotapi.Update
	stopped bool
}

func newFakeTelegram() *fakeTelegram {
	return &fakeTelegram{
		nextID:  100,
		updates: make(chan tgbotapi.Update, 16),
		uploads: make(map[string]string),
	}
}

func (f *fakeTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc, ok := c.(tgbotapi.DocumentConfig); ok {
		if fr, ok := doc.File.(tgbotapi.FileReader); ok {
			buf := make([]byte, 1024)
			n, _ := fr.Reader.Read(buf)
			f.uploads[fr.Name] = string(buf[:n])
		}
	}
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeTelegram) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeTelegram) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeTelegram) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stopped {
		f.stopped = true
		close(f.updates)
	}
}

func (f *fakeTelegram) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeTelegram) deleted() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int
	for _, c := range f.requests {
		if d, ok := c.(tgbotapi.DeleteMessageConfig); ok {
			ids = append(ids, d.MessageID)
		}
	}
	return ids
}

func (f *fakeTelegram) upload(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.uploads[name]
	return content, ok
}

// useFakeTelegram makes New build its bot on api.
func useFakeTelegram(api *fakeTelegram) func() {
	prev := newTelegramBot
	newTelegramBot = func(cfg *config.TelegramConfig, log *logger.Logger) (*telegram.Bot, error) {
		return telegram.NewWithAPI(api, tgbotapi.User{ID: 1, UserName: "sessionbot_test"}, cfg, log.GetZerolog()), nil
	}
	return func() { newTelegramBot = prev }
}

func textUpdate(updateID int, chatID int64, messageID int, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		MessageID: messageID,
		From:      &tgbotapi.User{ID: chatID, FirstName: "Ada"},
		Chat:      &tgbotapi.Chat{ID: chatID, Type: "private"},
		Text:      text,
		Date:      1700000000,
	}
	if len(text) > 0 && text[0] == '/' {
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}}
	}
	return tgbotapi.Update{UpdateID: updateID, Message: msg}
}
