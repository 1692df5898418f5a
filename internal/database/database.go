package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gluk-w/claworc/console/internal/config"
)

var DB *gorm.DB

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

func Init() error {
	dbPath := config.Cfg.DatabasePath
	dbDir := filepath.Dir(dbPath)
	if dbDir != "" {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		return err
	}
	DB = db
	return nil
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Instance{}, &TerminalSession{}, &Setting{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

func GetSetting(key string) (string, error) {
	var s Setting
	if err := DB.Where("key = ?", key).First(&s).Error; err != nil {
		return "", err
	}
	return s.Value, nil
}

func SetSetting(key, value string) error {
	return DB.Where("key = ?", key).Assign(Setting{Value: value}).FirstOrCreate(&Setting{Key: key}).Error
}

// Instance helpers

func ListInstances() ([]Instance, error) {
	var instances []Instance
	if err := DB.Order("sort_order, id").Find(&instances).Error; err != nil {
		return nil, err
	}
	return instances, nil
}

func GetInstance(id uint) (*Instance, error) {
	var inst Instance
	if err := DB.First(&inst, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("instance %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &inst, nil
}

func GetInstanceByName(name string) (*Instance, error) {
	var inst Instance
	if err := DB.Where("name = ?", name).First(&inst).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("instance %q: %w", name, ErrNotFound)
		}
		return nil, err
	}
	return &inst, nil
}

func UpdateInstanceStatus(id uint, status string) error {
	return DB.Model(&Instance{}).Where("id = ?", id).Update("status", status).Error
}

// SyncInstances upserts instances by name. Existing rows keep their ID and
// status; inventory fields are overwritten. It returns the number of rows
// created and updated.
func SyncInstances(list []Instance) (created, updated int, err error) {
	err = DB.Transaction(func(tx *gorm.DB) error {
		for i, in := range list {
			var existing Instance
			res := tx.Where("name = ?", in.Name).Limit(1).Find(&existing)
			if res.Error != nil {
				return fmt.Errorf("look up %s: %w", in.Name, res.Error)
			}
			if res.RowsAffected == 0 {
				in.SortOrder = i + 1
				if err := tx.Create(&in).Error; err != nil {
					return fmt.Errorf("create %s: %w", in.Name, err)
				}
				created++
				continue
			}
			if err := tx.Model(&existing).Updates(map[string]interface{}{
				"display_name":   in.DisplayName,
				"host":           in.Host,
				"ssh_user":       in.SSHUser,
				"ssh_port":       in.SSHPort,
				"ssh_public_key": in.SSHPublicKey,
				"container_name": in.ContainerName,
				"sort_order":     i + 1,
			}).Error; err != nil {
				return fmt.Errorf("update %s: %w", in.Name, err)
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return created, updated, nil
}

// Terminal session audit helpers

func RecordSession(s *TerminalSession) error {
	return DB.Save(s).Error
}

func ListSessions(instanceID uint, limit int) ([]TerminalSession, error) {
	var sessions []TerminalSession
	q := DB.Where("instance_id = ?", instanceID).Order("closed_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// PruneSessions deletes audit records closed before cutoff.
func PruneSessions(cutoff time.Time) (int64, error) {
	res := DB.Where("closed_at < ?", cutoff).Delete(&TerminalSession{})
	return res.RowsAffected, res.Error
}

func GetSession(id string) (*TerminalSession, error) {
	var s TerminalSession
	if err := DB.Where("id = ?", id).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &s, nil
}
