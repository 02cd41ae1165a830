package migrations

import (
	"gorm.io/gorm"
)

// Migration001Initial creates the core tables: image cache, event
// journal, share links and story documents.
type Migration001Initial struct{}

func (m *Migration001Initial) Version() string {
	return "001_initial"
}

func (m *Migration001Initial) Description() string {
	return "Create initial database schema with all core tables"
}

func (m *Migration001Initial) Up(db *gorm.DB) error {
	// Raw SQL keeps the migration stable even when the GORM models move.

	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cached_images (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key VARCHAR(255) NOT NULL UNIQUE,
			url TEXT NOT NULL,
			content_type VARCHAR(255),
			width INTEGER,
			height INTEGER,
			byte_size INTEGER,
			fetched_at DATETIME,
			expires_at DATETIME,
			metadata JSON
		)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runtime_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			topic VARCHAR(255) NOT NULL,
			session_id VARCHAR(255),
			element_id VARCHAR(255),
			data JSON NOT NULL,
			created_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS share_links (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			token_id VARCHAR(255) NOT NULL UNIQUE,
			document_id VARCHAR(255) NOT NULL,
			created_at DATETIME NOT NULL,
			expires_at DATETIME,
			revoked_at DATETIME
		)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS story_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			document_id VARCHAR(255) NOT NULL UNIQUE,
			title VARCHAR(255) NOT NULL,
			definition JSON NOT NULL,
			created_at DATETIME,
			updated_at DATETIME
		)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_runtime_events_topic ON runtime_events(topic)`).Error; err != nil {
		return err
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_runtime_events_session_id ON runtime_events(session_id)`).Error; err != nil {
		return err
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_runtime_events_element_id ON runtime_events(element_id)`).Error; err != nil {
		return err
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_runtime_events_created_at ON runtime_events(created_at)`).Error; err != nil {
		return err
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_share_links_document_id ON share_links(document_id)`).Error; err != nil {
		return err
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_share_links_expires_at ON share_links(expires_at)`).Error; err != nil {
		return err
	}

	return nil
}

func (m *Migration001Initial) Down(db *gorm.DB) error {
	if err := db.Exec(`DROP TABLE IF EXISTS story_records`).Error; err != nil {
		return err
	}
	if err := db.Exec(`DROP TABLE IF EXISTS share_links`).Error; err != nil {
		return err
	}
	if err := db.Exec(`DROP TABLE IF EXISTS runtime_events`).Error; err != nil {
		return err
	}
	if err := db.Exec(`DROP TABLE IF EXISTS cached_images`).Error; err != nil {
		return err
	}

	return nil
}
