package data

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel base table struct to be extended by content models.
type BaseModel struct {
	ID        string `gorm:"type:varchar(50);primaryKey"`
	CreatedAt time.Time
}

func (model *BaseModel) GetID() string {
	return model.ID
}

// GenID creates a new id for model if its not existent.
func (model *BaseModel) GenID() {
	if model.ID == "" {
		model.ID = uuid.NewString()
	}
}

func (model *BaseModel) BeforeCreate(_ *gorm.DB) error {
	model.GenID()
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now()
	}
	return nil
}

// Language is a catalog row. The catalog is seeded once and read-only afterwards.
type Language struct {
	Code        string `gorm:"type:varchar(10);primaryKey"`
	NativeName  string `gorm:"type:varchar(64)"`
	EnglishName string `gorm:"type:varchar(64)"`
}

func (Language) TableName() string { return "languages" }

// User holds the per-user preferences. A row exists from first sight onwards.
type User struct {
	ID              string `gorm:"type:varchar(64);primaryKey"`
	LastKnownName   string `gorm:"type:varchar(64)"`
	DefaultLanguage string `gorm:"type:varchar(10)"`
	AutoMode        AutoMode
	CreatedAt       time.Time
	ModifiedAt      time.Time
}

func (User) TableName() string { return "users" }

// Message is the content-addressed plain text of a chat message.
type Message struct {
	BaseModel
	ContentHash    string  `gorm:"type:varchar(64);uniqueIndex"`
	Text           string  `gorm:"type:text"`
	SourceLanguage *string `gorm:"type:varchar(10)"`
}

func (Message) TableName() string { return "messages" }

// MessageVariant is one rendered form of a Message, deduplicated on the exact
// rendered tree and plain text pair.
type MessageVariant struct {
	BaseModel
	MessageID    string `gorm:"type:varchar(50);index"`
	RenderedHash string `gorm:"type:varchar(64);uniqueIndex"`
	RenderedForm string `gorm:"type:text"`
}

func (MessageVariant) TableName() string { return "message_variants" }

// MessageLookup maps a lookup key handed out before persistence to its variant.
type MessageLookup struct {
	LookupKey        string `gorm:"type:varchar(50);primaryKey"`
	MessageVariantID string `gorm:"type:varchar(50);index"`
	CreatedAt        time.Time
}

func (MessageLookup) TableName() string { return "message_lookups" }

// Translation is immutable once written; one row per message and language.
type Translation struct {
	BaseModel
	MessageID string `gorm:"type:varchar(50);uniqueIndex:idx_translation_message_language"`
	Language  string `gorm:"type:varchar(10);uniqueIndex:idx_translation_message_language"`
	Text      string `gorm:"type:text"`
}

func (Translation) TableName() string { return "translations" }

// Models lists every persistent model in migration order.
func Models() []any {
	return []any{
		&Language{},
		&User{},
		&Message{},
		&MessageVariant{},
		&MessageLookup{},
		&Translation{},
	}
}

// ContentHash returns a hex sha256 over the length-prefixed parts so that
// ("ab", "c") and ("a", "bc") never collide.
func ContentHash(parts ...string) string {
	h := sha256.New()
	var size [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(size[:], uint64(len(p)))
		_, _ = h.Write(size[:])
		_, _ = h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
