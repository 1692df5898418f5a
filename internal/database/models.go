package database

import (
	"strconv"
	"time"

	"github.com/gluk-w/claworc/console/internal/termproto"
)

// Instance is a remote machine a terminal can be opened against.
type Instance struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string    `gorm:"uniqueIndex;not null" json:"name"`
	DisplayName   string    `gorm:"not null" json:"display_name"`
	Host          string    `gorm:"default:''" json:"host"`
	SSHUser       string    `gorm:"default:root" json:"ssh_user"`
	SSHPort       int       `gorm:"not null;default:22" json:"ssh_port"`
	SSHPublicKey  string    `gorm:"type:text" json:"-"`
	ContainerName string    `json:"container_name"`
	Status        string    `gorm:"not null;default:unknown" json:"status"`
	SortOrder     int       `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Target returns the terminal binding for the instance.
func (i Instance) Target() termproto.Target {
	label := i.DisplayName
	if label == "" {
		label = i.Name
	}
	return termproto.Target{
		ID:   strconv.FormatUint(uint64(i.ID), 10),
		Name: label,
		Host: i.Host,
		User: i.SSHUser,
	}
}

// ControlName is the name the instance controller knows the instance by.
func (i Instance) ControlName() string {
	if i.ContainerName != "" {
		return i.ContainerName
	}
	return i.Name
}

// TerminalSession is the audit record of one closed terminal.
type TerminalSession struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	InstanceID    uint      `gorm:"not null;index" json:"instance_id"`
	Mode          string    `gorm:"not null" json:"mode"`
	Status        string    `gorm:"not null" json:"status"`
	BytesReceived int64     `gorm:"not null;default:0" json:"bytes_received"`
	Commands      int       `gorm:"not null;default:0" json:"commands"`
	Transcript    string    `gorm:"type:text" json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	ClosedAt      time.Time `gorm:"index" json:"closed_at"`
}

type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
