package stubserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Chat struct {
	ID           string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	UserID       string    `gorm:"type:varchar(64);index;not null" json:"userId"`
	AgentID      string    `gorm:"type:varchar(64);not null" json:"agentId"`
	Title        string    `gorm:"type:varchar(255);not null" json:"title"`
	MessageCount int       `gorm:"not null;default:0" json:"messageCount"`
	LastMessage  string    `gorm:"type:text" json:"lastMessage"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (Chat) TableName() string { return "chats" }

type Message struct {
	ID        string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	ChatID    string    `gorm:"type:varchar(26);index;not null" json:"chatId"`
	Role      string    `gorm:"type:varchar(16);not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"timestamp"`
}

func (Message) TableName() string { return "chat_messages" }

type Store struct {
	db *gorm.DB
}

// Open connects to the backing database and migrates the schema. A DSN with
// a tcp host selects MySQL; anything else is treated as a SQLite path, which
// keeps local runs dependency-free.
func Open(dsn string) (*Store, error) {
	var dial gorm.Dialector
	if strings.Contains(dsn, "@tcp(") {
		dial = mysql.Open(dsn)
	} else {
		dial = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dial, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("stubserver: open database: %w", err)
	}
	if err := db.AutoMigrate(&Chat{}, &Message{}); err != nil {
		return nil, fmt.Errorf("stubserver: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) CreateChat(ctx context.Context, c *Chat) error {
	return s.db.WithContext(ctx).Create(c).Error
}

func (s *Store) GetChat(ctx context.Context, id string) (*Chat, error) {
	var c Chat
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListChats returns a user's chats, most recently active first.
func (s *Store) ListChats(ctx context.Context, userID string) ([]Chat, error) {
	var chats []Chat
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&chats).Error; err != nil {
		return nil, err
	}
	return chats, nil
}

// AppendMessage stores a message and refreshes the chat's denormalized
// preview in one transaction.
func (s *Store) AppendMessage(ctx context.Context, m *Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		return tx.Model(&Chat{}).
			Where("id = ?", m.ChatID).
			Updates(map[string]any{
				"message_count": gorm.Expr("message_count + 1"),
				"last_message":  m.Content,
				"updated_at":    m.CreatedAt,
			}).Error
	})
}

// ListMessages returns one page of a chat's messages in ASC id order (ULIDs
// sort by creation time) plus the total count.
func (s *Store) ListMessages(ctx context.Context, chatID string, page, limit int) ([]Message, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&Message{}).
		Where("chat_id = ?", chatID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var msgs []Message
	if err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id ASC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

// MessagesAfter returns messages newer than lastID in ASC id order. An empty
// lastID returns the whole chat.
func (s *Store) MessagesAfter(ctx context.Context, chatID, lastID string) ([]Message, error) {
	q := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id ASC")
	if lastID != "" {
		q = q.Where("id > ?", lastID)
	}

	var msgs []Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// PruneStale deletes chats idle past the cutoff along with their messages,
// returning how many chats went away.
func (s *Store) PruneStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)
	var pruned int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&Chat{}).
			Where("updated_at < ?", cutoff).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("chat_id IN ?", ids).Delete(&Message{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&Chat{})
		if res.Error != nil {
			return res.Error
		}
		pruned = res.RowsAffected
		return nil
	})
	return pruned, err
}
