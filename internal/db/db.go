package db

import (
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/aurumlabs/tokenchat/internal/chat"
	"github.com/aurumlabs/tokenchat/internal/enrich"
	"github.com/aurumlabs/tokenchat/internal/models"
	"github.com/aurumlabs/tokenchat/internal/session"
	"github.com/aurumlabs/tokenchat/internal/voice"
)

func Connect(dsn string) *gorm.DB {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	return gdb
}

// Migrate creates/updates all tables owned by this service.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&session.Session{},
		&session.RateLimitWindow{},
		&chat.Conversation{},
		&chat.Message{},
		&voice.AudioCache{},
		&enrich.WebhookLog{},
	)
}
