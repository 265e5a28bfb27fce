package db

import (
	"database/sql"
	"fmt"
	"log"

	"wavecast/config"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

var DB *sql.DB

// ConnectDB establishes a connection to the database.
func ConnectDB(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	var err error
	DB, err = sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to the database.")
	return nil
}

// InitDB initializes the tracks schema. The users table is managed by the
// GORM connection (see gorm.go); tracks stay on plain SQL because the
// repository relies on single-statement atomic counter updates.
func InitDB() error {
	if err := createTracksTable(); err != nil {
		return err
	}
	log.Println("Database initialization completed.")
	return nil
}

func createTracksTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS tracks (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		title VARCHAR(200) NOT NULL,
		artist VARCHAR(200) NOT NULL,
		album VARCHAR(200),
		genre VARCHAR(100),
		year INT,
		duration DOUBLE,
		lyrics TEXT,
		language VARCHAR(50),
		tags VARCHAR(500),
		audio_filename VARCHAR(255) NOT NULL,
		audio_original_name VARCHAR(255) NOT NULL,
		audio_mime_type VARCHAR(100) NOT NULL,
		audio_size BIGINT NOT NULL,
		audio_url VARCHAR(500) NOT NULL,
		cover_filename VARCHAR(255),
		cover_original_name VARCHAR(255),
		cover_mime_type VARCHAR(100),
		cover_size BIGINT,
		cover_url VARCHAR(500),
		uploaded_by BIGINT NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		moderated_by BIGINT,
		moderated_at TIMESTAMP NULL,
		moderation_notes VARCHAR(1000),
		play_count BIGINT NOT NULL DEFAULT 0,
		favorite_count BIGINT NOT NULL DEFAULT 0,
		download_count BIGINT NOT NULL DEFAULT 0,
		last_played_at TIMESTAMP NULL,
		avg_rating DOUBLE NOT NULL DEFAULT 0,
		rating_count BIGINT NOT NULL DEFAULT 0,
		active TINYINT(1) NOT NULL DEFAULT 1,
		featured TINYINT(1) NOT NULL DEFAULT 0,
		featured_at TIMESTAMP NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		INDEX idx_tracks_status_active (status, active),
		INDEX idx_tracks_uploaded_by (uploaded_by)
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create tracks table: %w", err)
	}
	log.Println("Tracks table initialized successfully (or already exists).")
	return nil
}
